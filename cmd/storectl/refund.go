package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/storefront-payments/internal/money"
	"github.com/imrishuroy/storefront-payments/internal/payments"
)

func refundCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Review refund requests",
	}
	cmd.AddCommand(refundApproveCmd(load), refundRejectCmd(load), refundProcessCmd(load))
	return cmd
}

func refundApproveCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve [orderId] [refundRequestId]",
		Short: "Approve a refund request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			note, _ := cmd.Flags().GetString("note")
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				r, err := a.orders.ApproveRefund(ctx, args[0], args[1], note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refund request %s is %s\n", r.ID, r.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringP("note", "n", "", "Note stored with the decision")
	return cmd
}

func refundRejectCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject [orderId] [refundRequestId]",
		Short: "Reject a refund request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			note, _ := cmd.Flags().GetString("note")
			if note == "" {
				return fmt.Errorf("--note is required when rejecting")
			}
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				r, err := a.orders.RejectRefund(ctx, args[0], args[1], note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refund request %s is %s\n", r.ID, r.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringP("note", "n", "", "Reason shown to the customer")
	return cmd
}

// refundProcessCmd submits an approved request to the payment provider
// and records the refund on the order.
func refundProcessCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "process [orderId] [refundRequestId]",
		Short: "Refund an approved request through the payment provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, a *app) error {
				o, r, err := a.orders.ApprovedRefund(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if o.PaymentIntentID == "" {
					return fmt.Errorf("order %s has no payment intent", o.OrderID)
				}
				// keyed on the request id so a repeated run cannot refund twice
				res, err := a.refunds.Process(ctx, payments.RefundRequest{
					PaymentIntentID: o.PaymentIntentID,
					Amount:          money.FromMinor(r.AmountMinor).StringFixed(2),
					Reason:          r.Reason,
					IdempotencyKey:  "refund-request-" + r.ID,
					Metadata:        map[string]string{payments.MetadataOrderID: o.OrderID, "refundRequestId": r.ID},
				})
				if err != nil {
					return err
				}
				if _, err := a.orders.CompleteRefund(ctx, o.OrderID, r.ID, o.PaymentIntentID, res.RefundID); err != nil {
					return fmt.Errorf("refund %s created but order not updated: %w", res.RefundID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refund %s %s for %s\n", res.RefundID, res.Status, res.Amount.StringFixed(2))
				return nil
			})
		},
	}
}
