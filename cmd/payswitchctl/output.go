package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

// printAccounts renders the ledger as a table. Merchant ids are masked.
func printAccounts(w io.Writer, list []models.MerchantAccount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMERCHANT\tUSAGE\tLIMIT\tREMAINING\tACTIVE\tDEFAULT")
	for i := range list {
		acct := &list[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			acct.ID,
			acct.Name,
			security.MaskMerchantID(acct.MerchantID),
			acct.MonthlyUsage.StringFixed(2),
			acct.MonthlyLimit.StringFixed(2),
			acct.Remaining().StringFixed(2),
			yesNo(acct.IsActive),
			yesNo(acct.IsDefault),
		)
	}
	return tw.Flush()
}
