// Package database opens the GORM connection backing the persistent topic
// store, with connect retries, pool settings, a zerolog-backed GORM logger
// and a panic-safe transaction helper.
//
//	db, err := database.Open(ctx, cfg.Database, log)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package database
