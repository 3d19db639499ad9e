package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"smartqr/internal/engine/scancontext"
	"smartqr/internal/engine/smartqr"
	"smartqr/internal/pkg/geoip"
)

type resolveOutput struct {
	URL      string                  `json:"url"`
	RuleID   string                  `json:"rule_id,omitempty"`
	Action   smartqr.ActionType      `json:"action,omitempty"`
	Fallback bool                    `json:"fallback"`
	Error    string                  `json:"error,omitempty"`
	Context  scancontext.ScanContext `json:"context"`
}

func newResolveCmd() *cobra.Command {
	var (
		file     string
		ua       string
		ip       string
		referrer string
		lang     string
		at       string
		geoDB    string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Route a simulated scan through a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("config file is required")
			}
			cfg, err := smartqr.LoadConfigFile(file)
			if err != nil {
				return err
			}
			if err := smartqr.ValidateConfig(cfg); err != nil {
				return err
			}

			sig := scancontext.RawSignals{UserAgent: ua, IPAddress: ip, Referrer: referrer, AcceptLanguage: lang}
			if at != "" {
				if sig.Time, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at time: %w", err)
				}
			}

			resolver, err := geoip.New(geoDB)
			if err != nil {
				return err
			}
			if c, ok := resolver.(io.Closer); ok {
				defer c.Close()
			}

			extractor := scancontext.NewExtractor(resolver, scancontext.Options{LookupTimeout: timeout, DefaultLocale: "en-US"})
			sc, _ := extractor.Extract(cmd.Context(), sig)
			res := smartqr.NewEngine(extractor, smartqr.NewHTTPAPICaller(timeout), nil).ResolveContext(cmd.Context(), cfg, sc)

			out := resolveOutput{URL: res.URL, RuleID: res.RuleID, Action: res.Action, Fallback: res.Fallback, Context: sc}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to YAML or JSON config")
	cmd.Flags().StringVar(&ua, "ua", "", "User-Agent of the simulated scanner")
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP address")
	cmd.Flags().StringVar(&referrer, "referrer", "", "Referer header")
	cmd.Flags().StringVar(&lang, "lang", "", "Accept-Language header")
	cmd.Flags().StringVar(&at, "at", "", "Scan time in RFC3339 (default now)")
	cmd.Flags().StringVar(&geoDB, "geoip-db", "", "Path to a GeoLite2 City database")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Geolocation and api_call timeout")

	return cmd
}
