package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/2beens/notesservice/internal/db"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the note table, if missing, and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:     cfg.PostgresHost,
			DBPort:     cfg.PostgresPort,
			DBName:     cfg.PostgresDBName,
			DBUser:     cfg.PostgresUser,
			DBPassword: cfg.PostgresPassword,
			SSLMode:    cfg.PostgresSSLMode,
		})
		if err != nil {
			return fmt.Errorf("new db pool: %w", err)
		}
		defer dbPool.Close()

		if err := db.CreateSchema(ctx, dbPool); err != nil {
			return err
		}

		log.Infof("note table ready in db [%s]", cfg.PostgresDBName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
