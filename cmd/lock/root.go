// Package lock provides the lock lifecycle commands of the CLI. The
// commands run against a file-backed local lock store, with optional
// validation against a remote content API.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/project-sunbird/sunbird-lock-service/cmd/util"
	"github.com/project-sunbird/sunbird-lock-service/lib/db"
	"github.com/project-sunbird/sunbird-lock-service/lib/db/engines/rowan"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockmgr"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/lockstore/lstore"
	"github.com/project-sunbird/sunbird-lock-service/lib/resource"
)

var (
	// LockCommands groups the lock lifecycle commands
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Acquire, refresh, release and list resource locks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitConfig()
			return util.BindCommandFlags(cmd)
		},
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [resourceId]",
		Short: "Acquire a lock on a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, manager lockmgr.ILockManager, caller lockmgr.Caller) error {
				creatorInfo := viper.GetString("creator-info")
				if creatorInfo == "" {
					doc, _ := json.Marshal(map[string]string{"name": caller.UserName, "id": caller.UserID})
					creatorInfo = string(doc)
				}

				result, err := manager.Acquire(ctx, caller, lockmgr.AcquireRequest{
					ResourceID:   args[0],
					ResourceType: viper.GetString("resource-type"),
					ResourceInfo: viper.GetString("resource-info"),
					CreatedBy:    caller.UserID,
					CreatorInfo:  creatorInfo,
				})
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh [resourceId] [lockKey]",
		Short: "Renew the lease of a held lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, manager lockmgr.ILockManager, caller lockmgr.Caller) error {
				result, err := manager.Refresh(ctx, caller, lockmgr.RefreshRequest{
					ResourceID:   args[0],
					LockID:       args[1],
					ResourceType: viper.GetString("resource-type"),
				})
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	releaseCmd = &cobra.Command{
		Use:   "release [resourceId]",
		Short: "Release a held lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, manager lockmgr.ILockManager, caller lockmgr.Caller) error {
				if err := manager.Release(ctx, caller, lockmgr.ReleaseRequest{
					ResourceID:   args[0],
					ResourceType: viper.GetString("resource-type"),
				}); err != nil {
					return err
				}
				fmt.Println("lock released")
				return nil
			})
		},
	}

	listCmd = &cobra.Command{
		Use:   "list [resourceId...]",
		Short: "List held locks, optionally filtered by resource ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, manager lockmgr.ILockManager, caller lockmgr.Caller) error {
				result, err := manager.List(ctx, caller, lockmgr.ListRequest{ResourceIDs: args})
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print statistics about the lock database",
		RunE: func(cmd *cobra.Command, args []string) error {
			database := rowan.NewRowanDB(nil)
			defer func() { _ = database.Close() }()
			if err := loadDatabase(database, viper.GetString("data-file")); err != nil {
				return err
			}
			return printJSON(database.GetInfo())
		},
	}
)

func init() {
	// Add Commands
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(refreshCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(listCmd)
	LockCommands.AddCommand(infoCmd)

	// Add Flags
	key := "data-file"
	LockCommands.PersistentFlags().String(key, "locks.db", util.WrapString("File the lock database is persisted to"))

	key = "resource-type"
	LockCommands.PersistentFlags().String(key, "content", util.WrapString("Type of the resource being locked"))

	key = "lease"
	LockCommands.PersistentFlags().Int(key, 3600, util.WrapString("Lease length in seconds for acquire and refresh"))

	key = "content-api"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Base URL of the content API used for lock validation. If unset, locks are managed locally without remote validation"))

	key = "timeout"
	LockCommands.PersistentFlags().Int(key, 10, util.WrapString("Timeout in seconds for content API requests"))

	key = "retries"
	LockCommands.PersistentFlags().Int(key, 3, util.WrapString("How many times to retry content API requests"))

	key = "user"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Id of the user performing the operation"))

	key = "user-name"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Display name of the user performing the operation"))

	key = "device"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Id of the device the operation is performed from"))

	key = "log-level"
	LockCommands.PersistentFlags().String(key, "warn", util.WrapString("Log level (debug, info, warn, error)"))

	acquireCmd.Flags().String("resource-info", "{}", util.WrapString("JSON document describing the resource"))
	acquireCmd.Flags().String("creator-info", "", util.WrapString("JSON document describing the lock creator, defaults to user and user-name"))
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// withManager assembles the lock manager over a file-backed database, runs
// the operation and persists the database back to disk.
func withManager(fn func(ctx context.Context, manager lockmgr.ILockManager, caller lockmgr.Caller) error) error {
	log, err := util.GetLogger("lock-cli")
	if err != nil {
		return err
	}
	ser, err := util.GetSerializer()
	if err != nil {
		return err
	}

	dataFile := viper.GetString("data-file")
	database := rowan.NewRowanDB(nil)
	if err := loadDatabase(database, dataFile); err != nil {
		return err
	}

	store, err := lstore.NewLockStore(database, ser)
	if err != nil {
		return err
	}

	validator, notifier := collaborators(store)
	manager := lockmgr.NewLockManager(util.GetManagerConfig(), store, validator, notifier, log)
	defer func() { _ = manager.Close() }()

	if err := fn(context.Background(), manager, util.GetCaller()); err != nil {
		return err
	}

	return saveDatabase(database, dataFile)
}

// collaborators picks the validator and notifier: the remote content API
// when configured, otherwise a local validator that trusts the store.
func collaborators(store lockstore.ILockStore) (resource.IResourceValidator, resource.IVersionNotifier) {
	conf := util.GetResourceClientConfig()
	if conf.BaseURL != "" {
		client := resource.NewHTTPClient(conf, nil)
		return client, client
	}
	return &localValidator{store: store}, nil
}

// localValidator approves every lockable check without a network hop. The
// reported lock key mirrors the stored record so refreshes of a held lock
// pass the lock key gate.
type localValidator struct {
	store lockstore.ILockStore
}

func (v *localValidator) Check(_ context.Context, ref resource.ResourceRef, _ map[string]string) (resource.CheckResult, error) {
	result := resource.CheckResult{Lockable: true}
	record, found, err := v.store.FindOne(ref.ResourceID, ref.ResourceType)
	if err != nil {
		return resource.CheckResult{}, err
	}
	if found {
		result.Snapshot.LockKey = record.LockID
	}
	return result, nil
}

// loadDatabase restores the database from the data file, if there is one.
func loadDatabase(database db.KVDB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()
	return database.Load(f)
}

// saveDatabase persists the database to the data file.
func saveDatabase(database db.KVDB, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := database.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
