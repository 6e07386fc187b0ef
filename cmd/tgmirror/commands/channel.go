package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage monitored channels",
	Long: `Manage the channels the fleet monitors.

Channels are discovered automatically: every channel a session administers
is recorded during roster sync. Forwarding is off by default per channel and
must be enabled explicitly.

Examples:
  tgmirror channel list
  tgmirror channel enable 1234567890
  tgmirror channel disable 1234567890
  tgmirror channel delays 1234567890 --base 2000 --per-member 10 --max 30000`,
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known channels",
	RunE:  runChannelList,
}

var channelEnableCmd = &cobra.Command{
	Use:   "enable <channel-id>",
	Short: "Enable forwarding for a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChannelToggle(args[0], true)
	},
}

var channelDisableCmd = &cobra.Command{
	Use:   "disable <channel-id>",
	Short: "Disable forwarding for a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChannelToggle(args[0], false)
	},
}

var (
	delayBase      int
	delayPerMember int
	delayMin       int
	delayMax       int
)

var channelDelaysCmd = &cobra.Command{
	Use:   "delays <channel-id>",
	Short: "Override per-channel send pacing",
	Long: `Override the send gap of a channel.

The gap between consecutive copies of one channel is base + per-member for
every roster member, clamped between min and max. All values are in
milliseconds; zero leaves the engine default in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runChannelDelays,
}

func init() {
	channelDelaysCmd.Flags().IntVar(&delayBase, "base", 0, "Base delay in ms")
	channelDelaysCmd.Flags().IntVar(&delayPerMember, "per-member", 0, "Additional delay per roster member in ms")
	channelDelaysCmd.Flags().IntVar(&delayMin, "min", 0, "Lower clamp in ms")
	channelDelaysCmd.Flags().IntVar(&delayMax, "max", 0, "Upper clamp in ms")

	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelEnableCmd)
	channelCmd.AddCommand(channelDisableCmd)
	channelCmd.AddCommand(channelDelaysCmd)
}

func parseChannelID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel ID %q", arg)
	}
	return id, nil
}

func runChannelList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channels, err := st.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	if len(channels) == 0 {
		fmt.Println("No channels known yet. Channels appear after a session's first roster sync.")
		return nil
	}

	fmt.Printf("%-14s %-10s %-8s %-18s %s\n", "ID", "FORWARD", "MEMBERS", "SESSION", "TITLE")
	for _, ch := range channels {
		forward := "off"
		if ch.ForwardEnabled {
			forward = "on"
		}
		fmt.Printf("%-14d %-10s %-8d %-18s %s\n", ch.ID, forward, ch.MemberCount, ch.OwningSession, ch.Title)
	}
	return nil
}

func runChannelToggle(arg string, enabled bool) error {
	id, err := parseChannelID(arg)
	if err != nil {
		return err
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.SetChannelForwarding(ctx, id, enabled); err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	if enabled {
		fmt.Printf("Forwarding enabled for channel %d\n", id)
	} else {
		fmt.Printf("Forwarding disabled for channel %d\n", id)
	}
	return nil
}

func runChannelDelays(cmd *cobra.Command, args []string) error {
	id, err := parseChannelID(args[0])
	if err != nil {
		return err
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.SetChannelDelays(ctx, id, delayBase, delayPerMember, delayMin, delayMax); err != nil {
		return fmt.Errorf("failed to update delays: %w", err)
	}

	ch, err := st.GetChannel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Channel %d pacing updated: effective gap %s at %d members\n", id, ch.SendGap(), ch.MemberCount)
	return nil
}
