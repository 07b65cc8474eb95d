package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/yoockh/hiready/internal/models"
)

// RunMigrations brings the relational schema up to date.
func RunMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// 001: users and job infos
		{
			ID: "001_users_job_infos",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&models.User{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&models.JobInfo{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("job_infos", "users")
			},
		},

		// 002: interviews, cascading with their job info
		{
			ID: "002_interviews",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&models.Interview{}); err != nil {
					return err
				}
				return tx.Exec(`ALTER TABLE interviews
					ADD CONSTRAINT fk_interviews_job_info
					FOREIGN KEY (job_info_id) REFERENCES job_infos(id) ON DELETE CASCADE`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("interviews")
			},
		},

		// 003: quota counting joins on owner and filters on connected interviews
		{
			ID: "003_interviews_activated_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_interviews_activated
					ON interviews (job_info_id) WHERE conversation_id IS NOT NULL`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_interviews_activated`).Error
			},
		},
	})
	return m.Migrate()
}
