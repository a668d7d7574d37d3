package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/storefront-payments/internal/money"
	"github.com/imrishuroy/storefront-payments/internal/orders"
)

func orderCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and change orders",
	}
	cmd.AddCommand(orderGetCmd(load), orderStatusCmd(load), orderResetCmd(load))
	return cmd
}

func orderGetCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [orderId]",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				o, err := a.orders.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(o)
				}
				printOrder(cmd.OutOrStdout(), o)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func orderStatusCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "status [orderId] [status]",
		Short: "Move an order to a new status (paid, shipped, delivered, cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				o, err := a.orders.Transition(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s is now %s\n", o.OrderID, o.Status)
				return nil
			})
		},
	}
}

func orderResetCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [orderId]",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("reset deletes order %s; pass --yes to confirm", args[0])
			}
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				if err := a.orders.Reset(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s deleted\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	return cmd
}

func printOrder(w io.Writer, o *orders.Order) {
	fmt.Fprintf(w, "Order:     %s\n", o.OrderID)
	fmt.Fprintf(w, "Title:     %s\n", o.Title)
	fmt.Fprintf(w, "Amount:    %s %s\n", money.FromMinor(o.AmountMinor).StringFixed(2), o.Currency)
	fmt.Fprintf(w, "Status:    %s\n", o.Status)
	if o.Email != "" {
		fmt.Fprintf(w, "Email:     %s\n", o.Email)
	}
	if o.PaymentIntentID != "" {
		fmt.Fprintf(w, "Payment:   %s\n", o.PaymentIntentID)
	}
	fmt.Fprintf(w, "Updated:   %s (version %d)\n", o.UpdatedAt.Format("2006-01-02 15:04:05"), o.Version)
	if len(o.RefundRequests) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRefund requests:")
	for _, r := range o.RefundRequests {
		fmt.Fprintf(w, "  %s  %s  %s", r.ID, money.FromMinor(r.AmountMinor).StringFixed(2), r.Status)
		if r.RefundID != "" {
			fmt.Fprintf(w, "  %s", r.RefundID)
		}
		fmt.Fprintln(w)
	}
}
