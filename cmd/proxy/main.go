package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chaosproxy/internal/admission"
	"chaosproxy/internal/bypass"
	"chaosproxy/internal/config"
	"chaosproxy/internal/dnsresolve"
	"chaosproxy/internal/fronting"
	"chaosproxy/internal/httpproxy"
	"chaosproxy/internal/mux"
	"chaosproxy/internal/relay"
	"chaosproxy/internal/socks5"
	"chaosproxy/internal/stats"
	"chaosproxy/internal/ui"
	"chaosproxy/internal/webserver"
	"chaosproxy/internal/wstunnel"
)

func main() {
	ui.EmitBanner("v1.0.0", ui.PickTagline())

	cfg, err := config.Load()
	if err != nil {
		ui.ErrorNote("Failed to load configuration: " + err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		ui.ErrorNote(err.Error())
		os.Exit(1)
	}

	for _, w := range cfg.Warnings {
		ui.WarningNote(w)
	}

	evasion := "fragmentation off"
	if cfg.Evasion.FragmentationEnabled {
		evasion = "fragmentation on"
		if cfg.Evasion.Aggressive {
			evasion += " (aggressive)"
		}
	}
	fmt.Println(ui.RenderSimpleTable(map[string]string{
		"Listen":    cfg.Server.Listen,
		"DNS mode":  cfg.DNS.Mode,
		"Evasion":   evasion,
		"Log level": cfg.Logging.Level,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	statsTracker := stats.New()

	bypassSet := bypass.NewSet(
		cfg.IranianRules.Domains,
		cfg.IranianRules.IPRanges,
		cfg.IranianRules.DownloadMimeTypes,
	)

	resolver := buildResolver(cfg)

	frontMap := fronting.NewMap(cfg.CDNDomains.CDNDomains)

	admissionCtl := admission.New(
		cfg.Limits.MaxConnections,
		cfg.Limits.PerIPRatePerSec,
		cfg.Limits.PerIPBurst,
	)

	var metrics *webserver.Server
	if cfg.Web.Enabled {
		adminHash := ""
		if cfg.Web.MetricsAdmin {
			adminHash = os.Getenv("CHAOSPROXY_METRICS_PASSWORD_HASH")
		}
		metrics = webserver.New(cfg.Server.MetricsListen, statsTracker, adminHash)
		metrics.Start()
		ui.LogStatus("info", "Metrics server on "+cfg.Server.MetricsListen)
	}

	go func() {
		<-ctx.Done()
		ui.LogStatus("info", "shutting down")
		if metrics != nil {
			metrics.Shutdown(context.Background())
		}
	}()

	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		ui.ErrorNote("Failed to bind listener: " + err.Error())
		os.Exit(1)
	}

	relayOpts := relay.Options{FragmentFirstWrite: cfg.Evasion.FragmentationEnabled}
	if cfg.Evasion.Aggressive {
		relayOpts.MinFragments = cfg.Chaos.AggressiveMinFragments
		relayOpts.MaxFragments = cfg.Chaos.AggressiveMaxFragments
	} else {
		relayOpts.MinFragments = cfg.Chaos.NormalMinFragments
		relayOpts.MaxFragments = cfg.Chaos.NormalMaxFragments
	}

	httpDeps := httpproxy.Deps{
		Bypass:       bypassSet,
		Resolver:     resolver,
		Fronting:     frontMap,
		Stats:        statsTracker,
		FrontEnabled: cfg.Evasion.FrontingEnabled,
		RelayOptions: relayOpts,
	}
	socksDeps := socks5.Deps{
		Bypass:       bypassSet,
		Resolver:     resolver,
		Stats:        statsTracker,
		RelayOptions: relayOpts,
	}
	wsDeps := wstunnel.Deps{
		Resolver: resolver,
		Stats:    statsTracker,
	}

	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				ui.LogStatus("info", "listener stopped, draining connections")
				wg.Wait()
				ui.LogStatus("success", "clean shutdown")
				ui.PrintFooter("docs: " + ui.FormatDocsLink("/troubleshooting", "chaosproxy.dev/docs/troubleshooting"))
				os.Exit(0)
			default:
				continue
			}
		}

		if !admissionCtl.Acquire(time.Duration(cfg.Limits.AcquireTimeoutSec * float64(time.Second))) {
			conn.Close()
			continue
		}

		if host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String()); splitErr == nil {
			if !admissionCtl.AllowIP(host) {
				admissionCtl.Release()
				conn.Close()
				continue
			}
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer admissionCtl.Release()
			serviceConnection(c, httpDeps, socksDeps, wsDeps)
		}(conn)
	}
}

func serviceConnection(conn net.Conn, httpDeps httpproxy.Deps, socksDeps socks5.Deps, wsDeps wstunnel.Deps) {
	proto, sniffed, err := mux.Detect(conn)
	if err != nil {
		conn.Close()
		return
	}

	ui.LogConnection("connect", proto.String()+" "+conn.RemoteAddr().String())

	r := bufio.NewReader(sniffed)

	switch proto {
	case mux.HTTP:
		httpproxy.Handle(conn, r, httpDeps)
	case mux.SOCKS5:
		socks5.Handle(conn, r, socksDeps)
	case mux.WebSocket:
		wstunnel.Handle(conn, r, wsDeps)
	default:
		conn.Close()
	}
}

func buildResolver(cfg *config.Config) *dnsresolve.Resolver {
	var dohServers []dnsresolve.DoHServer
	for _, s := range cfg.DNSServers.DoHServers {
		dohServers = append(dohServers, dnsresolve.DoHServer{Name: s.Name, URL: s.URL, IP: s.IP})
	}
	var dotServers []dnsresolve.DoTServer
	for _, s := range cfg.DNSServers.DoTServers {
		dotServers = append(dotServers, dnsresolve.DoTServer{Name: s.Name, Host: s.Host, Port: s.Port, Hostname: s.Hostname})
	}

	mode := dnsresolve.ModeDoH
	if cfg.DNS.Mode == "dot" {
		mode = dnsresolve.ModeDoT
	}

	return dnsresolve.New(mode, dohServers, dotServers, cfg.DNS.CacheMaxSize, time.Duration(cfg.DNS.CacheTTLSec)*time.Second)
}
