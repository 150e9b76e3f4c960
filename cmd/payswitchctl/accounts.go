package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

// importFile is the TOML layout accepted by `accounts import`:
//
//	[[accounts]]
//	name = "Primary"
//	merchant_id = "MS12345678"
//	secret_key = "..."
//	secret_iv = "..."
//	monthly_limit = "300000"
//	default = true
type importFile struct {
	Accounts []importAccount `toml:"accounts" validate:"required,min=1,dive"`
}

type importAccount struct {
	Name         string `toml:"name" validate:"required,max=100"`
	MerchantID   string `toml:"merchant_id" validate:"required,max=64"`
	SecretKey    string `toml:"secret_key" validate:"required"`
	SecretIV     string `toml:"secret_iv" validate:"required"`
	MonthlyLimit string `toml:"monthly_limit" validate:"required"`
	Active       bool   `toml:"active"`
	Default      bool   `toml:"default"`
	CompanyName  string `toml:"company_name"`
	TaxID        string `toml:"tax_id"`
	Address      string `toml:"address"`
	Phone        string `toml:"phone"`
}

var importValidator = validator.New(validator.WithRequiredStructEnabled())

func parseImport(r io.Reader) ([]accounts.AddInput, error) {
	var file importFile
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := importValidator.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid accounts file: %w", err)
	}

	seen := map[string]bool{}
	defaults := 0
	inputs := make([]accounts.AddInput, 0, len(file.Accounts))
	for i, acct := range file.Accounts {
		limit, err := decimal.NewFromString(strings.TrimSpace(acct.MonthlyLimit))
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: monthly_limit %q: %w", i, acct.MonthlyLimit, err)
		}
		if limit.IsNegative() {
			return nil, fmt.Errorf("accounts[%d]: monthly_limit must not be negative", i)
		}
		key := strings.ToUpper(strings.TrimSpace(acct.MerchantID))
		if seen[key] {
			return nil, fmt.Errorf("accounts[%d]: duplicate merchant_id %s", i, acct.MerchantID)
		}
		seen[key] = true
		if acct.Default {
			defaults++
		}
		inputs = append(inputs, accounts.AddInput{
			Name:         acct.Name,
			MerchantID:   acct.MerchantID,
			SecretKey:    acct.SecretKey,
			SecretIV:     acct.SecretIV,
			MonthlyLimit: limit,
			IsActive:     acct.Active,
			IsDefault:    acct.Default,
			CompanyName:  acct.CompanyName,
			TaxID:        acct.TaxID,
			Address:      acct.Address,
			Phone:        acct.Phone,
		})
	}
	if defaults > 1 {
		return nil, fmt.Errorf("at most one account may be marked default, found %d", defaults)
	}
	return inputs, nil
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and load merchant accounts",
	}
	cmd.AddCommand(accountsListCmd(), accountsImportCmd())
	return cmd
}

func accountsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List merchant accounts with usage and headroom",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
			list, err := rt.container.Accounts.List(ctx)
			if err != nil {
				return err
			}
			return printAccounts(cmd.OutOrStdout(), list)
		}),
	}
	return cmd
}

func accountsImportCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.toml>",
		Short: "Add merchant accounts from a TOML file",
		Long: `Add merchant accounts from a TOML file.

Secrets are sealed before they are stored. Accounts whose merchant id already
exists are skipped.

Examples:
  payswitchctl accounts import accounts.toml
  payswitchctl accounts import accounts.toml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			inputs, err := parseImport(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%d accounts parsed, nothing written (dry run)\n", len(inputs))
				return nil
			}
			return withServices(func(ctx context.Context, cmd *cobra.Command, rt *services, _ []string) error {
				return importAccounts(ctx, out, rt.container.Accounts, inputs)
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

type accountImporter interface {
	FindByMerchantID(ctx context.Context, merchantID string) (*models.MerchantAccount, error)
	Add(ctx context.Context, input accounts.AddInput) (*models.MerchantAccount, error)
}

// importAccounts adds each input in file order and skips merchant ids already present.
func importAccounts(ctx context.Context, out io.Writer, ledger accountImporter, inputs []accounts.AddInput) error {
	added, skipped := 0, 0
	for _, input := range inputs {
		existing, err := ledger.FindByMerchantID(ctx, input.MerchantID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		if existing != nil {
			skipped++
			fmt.Fprintf(out, "skip  %s (%s already present)\n", input.Name, security.MaskMerchantID(input.MerchantID))
			continue
		}
		acct, err := ledger.Add(ctx, input)
		if err != nil {
			return fmt.Errorf("add %s: %w", input.Name, err)
		}
		added++
		fmt.Fprintf(out, "added %s %s\n", acct.ID, acct.Name)
	}
	fmt.Fprintf(out, "%d added, %d skipped\n", added, skipped)
	return nil
}
