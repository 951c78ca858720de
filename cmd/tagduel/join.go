package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/rendezvous"
	"github.com/mweiss/tagduel/internal/session"
	"github.com/mweiss/tagduel/internal/signal"
)

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a duel by room code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), strings.ToUpper(args[0]))
		},
	}
}

func runJoin(ctx context.Context, code string) error {
	logger := newLogger()
	client := rendezvous.NewClient(cfg.Relay)

	ch, err := signal.Join(ctx, client, code, signal.Options{}, logger)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	fmt.Println("connected")

	guest := session.NewGuest(ctx, ch, session.DefaultTimings(), logger)
	guest.SetName(cfg.Name)

	in := bufio.NewReader(os.Stdin)
	producer := &stdinProducer{in: in, out: os.Stdout}

	for {
		select {
		case <-guest.Done():
			return nil
		case ev := <-guest.Events():
			switch ev.Type {
			case session.EventState:
				if done := guestTurn(ctx, guest, producer, in, *ev.Snapshot); done {
					guest.Leave()
					<-guest.Done()
					return nil
				}
			case session.EventRejected:
				fmt.Printf("rejected (%s): %s\n", ev.Reason, ev.Message)
			case session.EventPendingExpired:
				fmt.Println("no reply from the host for that move; try again")
			case session.EventConnectionLost:
				fmt.Println("connection lost")
				return nil
			case session.EventEnded:
				fmt.Println("the host ended the session")
				return nil
			}
		}
	}
}

// guestTurn mirrors hostTurn on the guest side. Returns true to leave.
func guestTurn(ctx context.Context, guest *session.Guest, producer session.IntentProducer, in *bufio.Reader, snap session.Snapshot) bool {
	switch {
	case snap.State.Phase == game.PhasePlaying && snap.State.Current == 1:
		intent, err := producer.NextIntent(ctx, snap.State, 1)
		if err != nil {
			return true
		}
		submitIntent(guest, intent)
	case snap.State.Phase == game.PhaseChallenge:
		fmt.Println("challenge raised, waiting on the map...")
	case snap.State.Phase == game.PhaseFinished && !snap.Votes[1]:
		printResult(os.Stdout, snap)
		if !askRematch(in, os.Stdout) {
			return true
		}
		guest.RequestRematch()
	}
	return false
}

func submitIntent(guest *session.Guest, in game.Intent) {
	switch in.Kind {
	case game.IntentAddTag:
		guest.SubmitTurn(string(game.IntentAddTag), in.Key, in.Value)
	case game.IntentSpecifyValue:
		guest.SubmitTurn(string(game.IntentSpecifyValue), in.Key, in.Value)
	case game.IntentChallenge:
		guest.Challenge()
	}
}
