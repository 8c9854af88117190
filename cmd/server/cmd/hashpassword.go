package cmd

import (
	"fmt"

	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/spf13/cobra"
)

var hashConfigPath string

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print an argon2id hash for auth.users[].password_hash",
	Long: `Hashes with the auth.argon2 cost of --config, so serve accepts the hash
without a rehash warning. Without --config the built-in cost is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		cost := config.DefaultArgon2Config()
		if hashConfigPath != "" {
			cfg, err := config.Load(hashConfigPath)
			if err != nil {
				return err
			}
			cost = cfg.Auth.Argon2
		}

		hash, err := auth.NewPasswordHasher(cost).HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().StringVarP(&hashConfigPath, "config", "c", "", "config file providing auth.argon2")
	rootCmd.AddCommand(hashPasswordCmd)
}
