package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/overpass"
	"github.com/mweiss/tagduel/internal/rendezvous"
	"github.com/mweiss/tagduel/internal/session"
	"github.com/mweiss/tagduel/internal/signal"
)

func hostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Create a room and host a duel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context())
		},
	}
}

func runHost(ctx context.Context) error {
	logger := newLogger()
	client := rendezvous.NewClient(cfg.Relay)

	hs := signal.NewHost(client, signal.Options{}, logger)
	defer hs.Close()

	code, err := hs.CreateRoom(ctx)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Printf("room code: %s\nwaiting for the other player...\n", code)

	ch, err := hs.WaitForGuest(ctx, func() {
		fmt.Println("nobody joined in time, the room has expired")
	})
	if err != nil {
		return err
	}
	fmt.Println("player connected")

	resolver := overpass.NewClient(cfg.Overpass, logger)
	host := session.NewHost(ctx, ch, game.NewState(cfg.Name, cfg.Region), resolver, session.DefaultTimings(), logger)
	host.Start()

	in := bufio.NewReader(os.Stdin)
	producer := &stdinProducer{in: in, out: os.Stdout}

	for {
		select {
		case <-host.Done():
			return nil
		case ev := <-host.Events():
			switch ev.Type {
			case session.EventState:
				if err := hostTurn(ctx, host, producer, in, *ev.Snapshot); err != nil {
					host.End()
					<-host.Done()
					return nil
				}
			case session.EventResolveFailed:
				fmt.Printf("could not resolve the challenge (%v), retrying\n", ev.Err)
				host.RetryChallenge()
			case session.EventConnectionLost:
				fmt.Println("connection lost")
				return nil
			case session.EventEnded:
				return nil
			}
		}
	}
}

// hostTurn reacts to one state change: plays when it is the host's turn,
// handles the end of a round. Returns an error to end the session.
func hostTurn(ctx context.Context, host *session.Host, producer session.IntentProducer, in *bufio.Reader, snap session.Snapshot) error {
	switch {
	case snap.State.Phase == game.PhasePlaying && snap.State.Current == 0:
		intent, err := producer.NextIntent(ctx, snap.State, 0)
		if err != nil {
			return err
		}
		if err := host.Submit(intent); err != nil {
			fmt.Printf("rejected: %v\n", err)
		}
	case snap.State.Phase == game.PhaseChallenge:
		fmt.Println("challenge raised, consulting the map...")
	case snap.State.Phase == game.PhaseFinished && !snap.Votes[0]:
		printResult(os.Stdout, snap)
		if !askRematch(in, os.Stdout) {
			return fmt.Errorf("declined rematch")
		}
		host.VoteRematch()
	}
	return nil
}
