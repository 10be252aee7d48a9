// Package relay implements the bidirectional byte pump between a client
// connection and the resolved remote connection, applying chaos-driven TLS
// ClientHello fragmentation to the first client->remote write only, per
// spec.md §4.11.
package relay

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chaosproxy/internal/chaos"
	"chaosproxy/internal/fragment"
	"chaosproxy/internal/tlsinspect"
	"chaosproxy/internal/ui"
)

const bufSize = 64 * 1024

var (
	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosproxy_relay_bytes_total",
		Help: "Bytes relayed, by direction.",
	}, []string{"direction"})

	connsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaosproxy_relay_connections_total",
		Help: "Relay sessions completed.",
	})
)

// Stats summarizes one completed relay session. Errored reports that a
// half terminated on a read or write error rather than clean EOF.
type Stats struct {
	BytesToRemote int64
	BytesToClient int64
	SNI           string
	Fragmented    bool
	Errored       bool
	Duration      time.Duration
}

// Options configures fragmentation behavior for one relay session.
type Options struct {
	// FragmentFirstWrite enables chaos-driven ClientHello fragmentation on
	// the first client->remote write when it looks like a TLS ClientHello.
	FragmentFirstWrite bool
	MinFragments       int
	MaxFragments       int
}

// DefaultOptions mirrors spec.md §4.11's default evasion path.
func DefaultOptions() Options {
	return Options{FragmentFirstWrite: true, MinFragments: 2, MaxFragments: 4}
}

// Pump relays bytes bidirectionally between client and remote until either
// side closes or ctx-independent I/O errors occur. It blocks until both
// directions finish.
func Pump(client, remote net.Conn, opts Options) Stats {
	start := time.Now()
	var wg sync.WaitGroup
	var toRemote, toClient int64
	var sni string
	var fragmented bool
	var clientErrored, remoteErrored bool

	engine := chaos.New()

	wg.Add(2)

	go func() {
		defer wg.Done()
		defer closeWrite(remote)
		n, s, frag, errored := pumpClientToRemote(client, remote, opts, engine)
		toRemote = n
		sni = s
		fragmented = frag
		clientErrored = errored
	}()

	go func() {
		defer wg.Done()
		defer closeWrite(client)
		toClient, remoteErrored = pumpPlain(remote, client)
	}()

	wg.Wait()

	bytesTotal.WithLabelValues("to_remote").Add(float64(toRemote))
	bytesTotal.WithLabelValues("to_client").Add(float64(toClient))
	connsTotal.Inc()

	return Stats{
		BytesToRemote: toRemote,
		BytesToClient: toClient,
		SNI:           sni,
		Fragmented:    fragmented,
		Errored:       clientErrored || remoteErrored,
		Duration:      time.Since(start),
	}
}

func pumpClientToRemote(src io.Reader, dst net.Conn, opts Options, engine *chaos.Engine) (int64, string, bool, bool) {
	buf := make([]byte, bufSize)
	var total int64
	first := true
	var sni string
	fragmented := false

	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if first {
				first = false
				if tlsinspect.IsClientHello(chunk) {
					sni = tlsinspect.ExtractSNI(chunk)
					if sni != "" {
						ui.LogStatus("info", "TLS SNI "+sni)
					}
				}
				if opts.FragmentFirstWrite && tlsinspect.IsClientHello(chunk) {
					written, ferr := writeFragmented(dst, chunk, engine, opts)
					total += written
					if ferr != nil {
						return total, sni, fragmented, true
					}
					fragmented = true
					continue
				}
			}
			w, werr := dst.Write(chunk)
			total += int64(w)
			if werr != nil {
				return total, sni, fragmented, true
			}
		}
		if err != nil {
			return total, sni, fragmented, err != io.EOF
		}
	}
}

func pumpPlain(src io.Reader, dst io.Writer) (int64, bool) {
	n, err := io.Copy(dst, src)
	return n, err != nil
}

func writeFragmented(dst net.Conn, chunk []byte, engine *chaos.Engine, opts Options) (int64, error) {
	minF, maxF := opts.MinFragments, opts.MaxFragments
	if minF < 1 {
		minF = 2
	}
	if maxF < minF {
		maxF = minF
	}
	numFragments := engine.FragmentCount(minF, maxF)
	plan := fragment.Plan(engine, len(chunk), numFragments)

	if len(plan) == 0 {
		n, err := dst.Write(chunk)
		return int64(n), err
	}

	var total int64
	prev := 0
	for _, cut := range plan {
		w, err := dst.Write(chunk[prev:cut.Offset])
		total += int64(w)
		if err != nil {
			return total, err
		}
		if cut.Delay > 0 {
			time.Sleep(cut.Delay)
		}
		prev = cut.Offset
	}
	return total, nil
}

func closeWrite(conn net.Conn) {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := conn.(halfCloser); ok {
		hc.CloseWrite()
		return
	}
	conn.Close()
}
