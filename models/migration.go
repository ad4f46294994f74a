package models

import (
	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()

	utils.ErrorPanic(db.AutoMigrate(
		&Store{},
		&BundleMapping{},
		&SyncedOrder{},
		&SyncLog{},
	))
}
