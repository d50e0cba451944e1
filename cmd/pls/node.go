package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ark-network/pls/internal/core/application"
	"github.com/ark-network/pls/internal/core/domain"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	proposeCommand = cli.Command{
		Name:  "propose",
		Usage: "Broadcasts a contract request to its participants",
		Action: func(ctx *cli.Context) error {
			return propose(ctx)
		},
		Flags: []cli.Flag{&contractFlag, &passwordFlag},
	}

	approveCommand = cli.Command{
		Name:  "approve",
		Usage: "Signs the contract requested for a file hash and broadcasts the approval",
		Action: func(ctx *cli.Context) error {
			return approve(ctx)
		},
		Flags: []cli.Flag{&fileHashFlag, &makerFlag, &waitFlag, &passwordFlag},
	}

	negotiationsCommand = cli.Command{
		Name:  "negotiations",
		Usage: "Shows the negotiations stored locally",
		Action: func(ctx *cli.Context) error {
			return negotiations(ctx)
		},
		Flags: []cli.Flag{&passwordFlag},
	}

	dmCommand = cli.Command{
		Name:  "dm",
		Usage: "Sends an encrypted direct message",
		Action: func(ctx *cli.Context) error {
			return dm(ctx)
		},
		Flags: []cli.Flag{&toFlag, &messageFlag, &passwordFlag},
	}

	listenCommand = cli.Command{
		Name:  "listen",
		Usage: "Runs the negotiation node until interrupted",
		Action: func(ctx *cli.Context) error {
			return listen(ctx)
		},
		Flags: []cli.Flag{&passwordFlag},
	}
)

func propose(ctx *cli.Context) error {
	terms, err := readContract(ctx)
	if err != nil {
		return err
	}
	svc, err := startService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	report, err := svc.ProposeContract(cntx, *terms)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func approve(ctx *cli.Context) error {
	fileHash := strings.ToLower(ctx.String(fileHashFlag.Name))
	maker, err := parsePubkey(ctx.String(makerFlag.Name))
	if err != nil {
		return err
	}

	svc, err := startService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	if err := waitForNegotiation(svc, fileHash, maker, ctx.Duration(waitFlag.Name)); err != nil {
		return err
	}
	report, err := svc.ApproveContract(cntx, fileHash, maker)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func negotiations(ctx *cli.Context) error {
	if _, err := unlock(ctx); err != nil {
		return err
	}
	svc, err := appConfig.AppService()
	if err != nil {
		return err
	}

	list, err := svc.ListNegotiations(cntx)
	if err != nil {
		return err
	}
	views := make([]negotiationView, 0, len(list))
	for _, negotiation := range list {
		views = append(views, newNegotiationView(negotiation))
	}
	return printJSON(views)
}

func dm(ctx *cli.Context) error {
	recipient, err := parsePubkey(ctx.String(toFlag.Name))
	if err != nil {
		return err
	}
	svc, err := startService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	report, err := svc.SendDirectMessage(cntx, recipient, ctx.String(messageFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(report)
}

func listen(ctx *cli.Context) error {
	if len(cfg.MetricsAddr) > 0 {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		appConfig.MetricsRegistry = registry
		stop := serveMetrics(cfg.MetricsAddr, registry)
		defer stop()
	}

	svc, err := startService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	info := svc.GetInfo(cntx)
	log.Infof(
		"node %s started on %d relays, key mode %s, client quorum %d",
		info.PubKey, len(info.Relays), info.KeyMode, info.ClientQuorum,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)

	for {
		select {
		case request := <-svc.GetRequestsChannel(cntx):
			printLine("contract_request", request)
		case final := <-svc.GetFinalizedChannel(cntx):
			printLine("contract_finalized", final)
		case msg := <-svc.GetDirectMessagesChannel(cntx):
			printLine("direct_message", msg)
		case <-sigChan:
			log.Info("shutting down node...")
			return nil
		}
	}
}

func startService(ctx *cli.Context) (application.Service, error) {
	if _, err := unlock(ctx); err != nil {
		return nil, err
	}
	svc, err := appConfig.AppService()
	if err != nil {
		return nil, err
	}
	if err := svc.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

// waitForNegotiation polls the local store until the request for fileHash
// has been received from the relays.
func waitForNegotiation(
	svc application.Service, fileHash, maker string, timeout time.Duration,
) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		_, err := svc.GetNegotiation(cntx, fileHash, maker)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNegotiationNotFound) {
			return err
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("no contract request received for %s within %s", fileHash, timeout)
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:all
		server.Shutdown(ctx)
	}
}

// parsePubkey accepts hex or npub keys. An empty key is returned as is.
func parsePubkey(pubkey string) (string, error) {
	if !strings.HasPrefix(pubkey, "npub") {
		return pubkey, nil
	}
	prefix, value, err := nip19.Decode(pubkey)
	if err != nil {
		return "", fmt.Errorf("failed to decode npub: %w", err)
	}
	decoded, ok := value.(string)
	if prefix != "npub" || !ok || !nostr.IsValidPublicKey(decoded) {
		return "", fmt.Errorf("invalid npub %s", pubkey)
	}
	return decoded, nil
}

type negotiationView struct {
	Id        string            `json:"id"`
	FileHash  string            `json:"fileHash"`
	RequestId string            `json:"requestId"`
	Maker     string            `json:"maker"`
	Stage     string            `json:"stage"`
	Quorum    string            `json:"quorum"`
	Approvals map[string]string `json:"approvals"`
}

func newNegotiationView(n *domain.Negotiation) negotiationView {
	approvals := make(map[string]string, len(n.Approvals))
	for signer, approval := range n.Approvals {
		approvals[signer] = approval.Signature
	}
	return negotiationView{
		Id:        n.Id,
		FileHash:  n.FileHash,
		RequestId: n.RequestId,
		Maker:     n.Maker,
		Stage:     n.Stage.String(),
		Quorum:    n.Status().String(),
		Approvals: approvals,
	}
}

func printLine(kind string, payload interface{}) {
	buf, err := json.Marshal(map[string]interface{}{"type": kind, "data": payload})
	if err != nil {
		log.WithError(err).Warnf("failed to encode %s", kind)
		return
	}
	fmt.Println(string(buf))
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}

	fmt.Println(string(jsonBytes))
	return nil
}
