// Command rulesim dry-runs a YAML routing rule set against sample messages.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/routing"
)

var osExit = os.Exit

// sample is one message in a samples file.
type sample struct {
	Channel domain.Channel `yaml:"channel"`
	Text    string         `yaml:"text"`
}

type verdict struct {
	Channel domain.Channel `json:"channel"`
	Text    string         `json:"text"`
	Matched bool           `json:"matched"`
	RuleID  *string        `json:"rule_id"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		osExit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rulesim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rulesPath := fs.String("rules", "", "YAML rule set")
	samplesPath := fs.String("samples", "", "YAML list of {channel, text} messages")
	ch := fs.String("channel", string(domain.ChannelWhatsApp), "channel of a single message")
	text := fs.String("text", "", "text of a single message")
	verbose := fs.Bool("v", false, "log skipped rules")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesPath == "" {
		return errors.New("-rules is required")
	}

	src, err := routing.LoadRuleFile(*rulesPath)
	if err != nil {
		return err
	}

	var samples []sample
	switch {
	case *samplesPath != "":
		data, err := os.ReadFile(*samplesPath)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &samples); err != nil {
			return fmt.Errorf("parse samples: %w", err)
		}
	case *text != "":
		samples = []sample{{Channel: domain.Channel(*ch), Text: *text}}
	default:
		return errors.New("either -samples or -text is required")
	}

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	// Simulation only reads rules; the catalog repositories are never touched.
	engine := routing.NewEngine(src, nil, nil, nil, nil, nil, routing.Options{}, logger)

	enc := json.NewEncoder(out)
	for _, s := range samples {
		res, err := engine.Simulate(context.Background(), routing.Input{Channel: s.Channel, Text: s.Text})
		if err != nil {
			return err
		}
		if err := enc.Encode(verdict{Channel: s.Channel, Text: s.Text, Matched: res.Matched, RuleID: res.RuleID}); err != nil {
			return err
		}
	}
	return nil
}
