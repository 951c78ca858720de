package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/session"
)

// stdinProducer is the thinnest possible intent producer: it prints the pool
// and reads one command per turn. The session treats it exactly like a bot.
type stdinProducer struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *stdinProducer) NextIntent(ctx context.Context, s game.State, player int) (game.Intent, error) {
	for {
		printPool(p.out, s)
		fmt.Fprint(p.out, "your turn (add <key> [value] | set <key> <value> | challenge)> ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			return game.Intent{}, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "add":
			if len(fields) < 2 {
				fmt.Fprintln(p.out, "usage: add <key> [value]")
				continue
			}
			in := game.Intent{Kind: game.IntentAddTag, Player: player, Key: fields[1]}
			if len(fields) > 2 {
				v := fields[2]
				in.Value = &v
			}
			return in, nil
		case "set":
			if len(fields) < 3 {
				fmt.Fprintln(p.out, "usage: set <key> <value>")
				continue
			}
			v := fields[2]
			return game.Intent{Kind: game.IntentSpecifyValue, Player: player, Key: fields[1], Value: &v}, nil
		case "challenge":
			return game.Intent{Kind: game.IntentChallenge, Player: player}, nil
		default:
			fmt.Fprintf(p.out, "unknown command %q\n", fields[0])
		}
	}
}

func printPool(out io.Writer, s game.State) {
	fmt.Fprintf(out, "\nround %d, region %s\n", s.Round, s.Region)
	if len(s.Tags) == 0 {
		fmt.Fprintln(out, "  (pool is empty)")
	}
	for _, t := range s.Tags {
		if t.Value != nil {
			fmt.Fprintf(out, "  %s=%s\n", t.Key, *t.Value)
		} else {
			fmt.Fprintf(out, "  %s=*\n", t.Key)
		}
	}
}

func printResult(out io.Writer, snap session.Snapshot) {
	r := snap.State.Result
	if r == nil {
		return
	}
	if r.Exists {
		fmt.Fprintf(out, "\nchallenge failed: %d matching elements exist\n", r.Count)
	} else {
		fmt.Fprintln(out, "\nchallenge stands: nothing matches the pool")
	}
	fmt.Fprintf(out, "%s wins the round (score %d:%d)\n",
		snap.State.Players[r.Winner].Name, snap.Wins[0], snap.Wins[1])
}

// askRematch reads a yes/no off the terminal after a finished round.
func askRematch(in *bufio.Reader, out io.Writer) bool {
	fmt.Fprint(out, "rematch? (y/n)> ")
	line, err := in.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(line)), "y")
}
