package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opst/trackfab/pkg/cluster"
	kerr "github.com/opst/trackfab/pkg/cluster/k8serrors"
	"github.com/opst/trackfab/pkg/loop"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// Spec names the service port to reach and the local port to bind.
type Spec struct {
	// Service to reach.
	Service string

	// Name of the service port.
	Port string

	// Local TCP port to bind. 0 binds an ephemeral one.
	LocalPort int32
}

func (s Spec) String() string {
	return fmt.Sprintf("localhost:%d -> %s:%s", s.LocalPort, s.Service, s.Port)
}

// Tunnel is one established port-forwarding.
type Tunnel interface {
	// local address ("localhost:PORT") of the tunnel.
	LocalAddr() string

	// closed when the tunnel stops serving.
	Done() <-chan struct{}

	// cause of stopping. nil while serving, and after a plain Close.
	Err() error

	// stop the tunnel. Idempotent.
	Close()
}

type tunnel struct {
	localAddr string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func (t *tunnel) LocalAddr() string {
	return t.localAddr
}

func (t *tunnel) Done() <-chan struct{} {
	return t.done
}

func (t *tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *tunnel) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *tunnel) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

type option struct {
	log *log.Logger
}

type Option func(*option) *option

// WithLog subscribes the forwarder's own output, line by line.
//
// If this option is not given, it is discarded.
func WithLog(l *log.Logger) Option {
	return func(o *option) *option {
		o.log = l
		return o
	}
}

// logWriter splits the forwarder's raw output into log lines.
type logWriter struct {
	l    *log.Logger
	mu   sync.Mutex
	tail string
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lines := strings.Split(w.tail+string(p), "\n")
	w.tail = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if line != "" {
			w.l.Println("port-forward>", line)
		}
	}
	return len(p), nil
}

// Open starts forwarding spec.LocalPort to the named port of a running pod
// behind the service, like `kubectl port-forward service/...`.
//
// The tunnel stops when ctx is canceled or Close is called. It does not
// reconnect by itself; see Supervisor for that.
func Open(
	ctx context.Context, config *rest.Config, client cluster.K8sClient,
	namespace string, spec Spec, opts ...Option,
) (Tunnel, error) {
	opt := &option{}
	for _, o := range opts {
		opt = o(opt)
	}

	svc, err := client.GetService(ctx, namespace, spec.Service)
	if err != nil {
		return nil, err
	}

	var svcPort *kubecore.ServicePort
	for i := range svc.Spec.Ports {
		if svc.Spec.Ports[i].Name == spec.Port {
			svcPort = &svc.Spec.Ports[i]
			break
		}
	}
	if svcPort == nil {
		return nil, kerr.NewMissing(fmt.Sprintf(
			"service %s has no port named %s", spec.Service, spec.Port,
		))
	}

	pods, err := client.FindPods(ctx, namespace, cluster.LabelsToSelector(svc.Spec.Selector))
	if err != nil {
		return nil, err
	}
	var target *kubecore.Pod
	for i := range pods {
		if pods[i].Status.Phase == kubecore.PodRunning {
			target = &pods[i]
			break
		}
	}
	if target == nil {
		return nil, kerr.NewMissing(fmt.Sprintf(
			"service %s has no running pod", spec.Service,
		))
	}

	// the forwarder takes numeric pod ports. a named targetPort is
	// resolved against the pod's containers, as kubectl does.
	podPort := svcPort.TargetPort.IntVal
	if svcPort.TargetPort.Type == intstr.String {
		name := svcPort.TargetPort.StrVal
		podPort = cluster.PodOf(*target).Ports()[name]
		if podPort == 0 {
			return nil, kerr.NewMissing(fmt.Sprintf(
				"pod %s has no container port named %s", target.Name, name,
			))
		}
	} else if podPort == 0 {
		// an unset targetPort falls back to the service port.
		podPort = svcPort.Port
	}

	roundTripper, upgrader, err := spdy.RoundTripperFor(config)
	if err != nil {
		return nil, err
	}

	host := config.Host
	if _, h, ok := strings.Cut(host, "//"); ok { // remove scheme
		host = h
	}

	d := spdy.NewDialer(
		upgrader, &http.Client{Transport: roundTripper},
		http.MethodPost,
		&url.URL{
			Scheme: "https",
			Host:   host,
			Path: fmt.Sprintf(
				"/api/v1/namespaces/%s/pods/%s/portforward", namespace, target.Name,
			),
		},
	)

	t := &tunnel{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	var out io.Writer = io.Discard
	if opt.log != nil {
		out = &logWriter{l: opt.log}
	}

	readyChan := make(chan struct{})
	forwarder, err := portforward.New(
		d, []string{fmt.Sprintf("%d:%d", spec.LocalPort, podPort)},
		t.stop, readyChan, out, out,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(t.done)
		if err := forwarder.ForwardPorts(); err != nil {
			t.setErr(err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
	}()

	select {
	case <-readyChan:
	case <-t.done:
		err := t.Err()
		if err == nil {
			err = errors.New("port-forwarding closed before becoming ready")
		}
		return nil, err
	case <-ctx.Done():
		t.Close()
		return nil, ctx.Err()
	}

	ports, err := forwarder.GetPorts()
	if err != nil {
		t.Close()
		return nil, err
	}

	t.localAddr = fmt.Sprintf("localhost:%d", ports[0].Local)
	return t, nil
}

// Supervisor holds a tunnel open, reopening it when it drops.
type Supervisor struct {
	Namespace string
	Spec      Spec

	Config *rest.Config
	Client cluster.K8sClient

	// wait between reopen attempts. Defaults to 3 seconds.
	Grace time.Duration

	// consecutive failed opens tolerated before Run gives up.
	// 0 retries forever.
	RetryLimit int

	Log *log.Logger
}

// Run blocks holding the tunnel open until ctx is canceled, then returns nil.
//
// ready, if not nil, is called once with the local address of the first
// established tunnel. With Spec.LocalPort fixed, reopened tunnels keep
// that address.
//
// A non-nil error means the tunnel could not be kept open: RetryLimit
// consecutive opens failed.
func (s *Supervisor) Run(ctx context.Context, ready func(localAddr string)) error {
	grace := s.Grace
	if grace <= 0 {
		grace = 3 * time.Second
	}

	open := func(ctx context.Context) (Tunnel, error) {
		return Open(ctx, s.Config, s.Client, s.Namespace, s.Spec, WithLog(s.Log))
	}
	return supervise(ctx, s.Spec.String(), open, grace, s.RetryLimit, s.Log, ready)
}

type supervision struct {
	failures int
}

func supervise(
	ctx context.Context, name string,
	open func(context.Context) (Tunnel, error),
	grace time.Duration, retryLimit int,
	logger *log.Logger, ready func(string),
) error {
	_, err := loop.Start(ctx, supervision{}, func(ctx context.Context, state supervision) (supervision, loop.Next) {
		t, err := open(ctx)
		if err != nil {
			state.failures += 1
			if 0 < retryLimit && retryLimit <= state.failures {
				return state, loop.Break(fmt.Errorf(
					"tunnel %s: %d consecutive attempts failed: %w",
					name, state.failures, err,
				))
			}
			if logger != nil {
				logger.Printf("tunnel %s: open failed (%v); retrying", name, err)
			}
			return state, loop.Continue(grace)
		}

		state.failures = 0
		if ready != nil {
			ready(t.LocalAddr())
			ready = nil
		}

		select {
		case <-ctx.Done():
			t.Close()
			<-t.Done()
			return state, loop.Break(nil)
		case <-t.Done():
			if logger != nil {
				logger.Printf("tunnel %s: dropped (%v); reopening", name, t.Err())
			}
			return state, loop.Continue(grace)
		}
	})

	if ctx.Err() != nil {
		// shutdown by cancel is the normal way out.
		return nil
	}
	return err
}
