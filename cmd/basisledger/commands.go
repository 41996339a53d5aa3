package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBasisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "basis <wallet>",
		Short: "Read a wallet's deposited basis",
		Long:  "Read through the local store, falling back to the remote backup for recovery.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			basis, err := a.engine.TotalDeposited(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s totalDeposited=%.6f\n", args[0], basis)
			return nil
		},
	}
}

func newReconstructCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reconstruct <wallet>",
		Short: "Rebuild a wallet's basis from on-chain transfer history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			basis, err := a.engine.ReconstructBasis(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Printf("%s reconstructedBasis=%.6f\n", args[0], basis)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the reconstruction cache")
	return cmd
}

func newFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay the pending-sync queue against the backup store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.queue.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("attempted=%d succeeded=%d failed=%d dropped=%d\n",
				stats.Attempted, stats.Succeeded, stats.Failed, stats.Dropped)
			return nil
		},
	}
}
