package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	redisipc "github.com/librescoot/redis-ipc"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"fluid-service/internal/geometry"
	"fluid-service/internal/logger"
	"fluid-service/internal/types"
)

// Redis keys shared with the flight-controller bridge and the front-ends.
const (
	PoseChannel     = "fluid:pose"
	TwistChannel    = "fluid:twist"
	LinkChannel     = "fluid:link"
	LinkHash        = "fluid:link"
	SetpointChannel = "fluid:setpoint"
	StatusHash      = "fluid"
	OperationQueue  = "fluid:operation"
	ResultChannel   = "fluid:operation:result"
	CommandQueue    = "fluid:command"
	TrackingStream  = "fluid:tracking"

	trackingMaxLen = 10000
)

// OperationRequest is what a front-end pushes onto the operation queue.
// Operation "cancel" aborts the running operation.
type OperationRequest struct {
	ID        string          `json:"id,omitempty"`
	Operation string          `json:"operation"`
	Goal      json.RawMessage `json:"goal,omitempty"`
}

// OperationResult is published once per accepted or rejected request.
type OperationResult struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// Command is a request to the flight-controller bridge.
type Command struct {
	Command string `json:"command"`
	Mode    string `json:"mode,omitempty"`
}

type Callbacks struct {
	OperationCallback func(OperationRequest) error
	LinkCallback      func(types.LinkState)
}

type unsubscriber interface {
	Unsubscribe() error
}

type RedisClient struct {
	host      string
	port      int
	ipc       *redisipc.Client
	callbacks Callbacks
	logger    *logger.Logger

	status   *redisipc.HashPublisher
	tracking *redisipc.StreamPublisher
	subs     []unsubscriber
	queue    *redisipc.QueueHandler[OperationRequest]

	mu    sync.RWMutex
	pose  types.Pose
	twist types.Twist
	link  types.LinkState
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	return &RedisClient{
		host:      host,
		port:      port,
		callbacks: callbacks,
		logger:    l,
		pose:      types.Pose{Orientation: geometry.IdentityQuaternion},
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s:%d", r.host, r.port)

	client, err := redisipc.New(
		redisipc.WithAddress(r.host),
		redisipc.WithPort(r.port),
		redisipc.WithLogger(r.logger.WithTag("redis-ipc").Slog()),
		redisipc.WithOnDisconnect(func(err error) {
			r.logger.Warnf("Redis connection lost: %v", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.ipc = client
	r.status = client.Hash(StatusHash)
	r.tracking = client.NewStreamPublisher(TrackingStream, redisipc.WithMaxLen(trackingMaxLen))
	r.logger.Infof("Successfully connected to Redis")

	if err := r.restoreLink(); err != nil {
		r.logger.Warnf("Failed to get initial link state: %v", err)
	}
	return nil
}

// restoreLink seeds the link state from the bridge's hash so a restart
// does not see a disconnected vehicle until the next link message.
func (r *RedisClient) restoreLink() error {
	fields, err := r.ipc.Raw().HGetAll(r.ipc.Context(), LinkHash).Result()
	if errors.Is(err, redis.Nil) || len(fields) == 0 {
		return nil
	}
	if err != nil {
		return err
	}
	link := decodeLinkHash(fields)
	r.logger.Infof("Initial link state: connected=%v armed=%v mode=%s", link.Connected, link.Armed, link.Mode)
	r.handleLink(link)
	return nil
}

func decodeLinkHash(fields map[string]string) types.LinkState {
	flag := func(name string) bool {
		v, _ := strconv.ParseBool(fields[name])
		return v
	}
	return types.LinkState{
		Connected: flag("connected"),
		Armed:     flag("armed"),
		Mode:      fields["mode"],
		Landed:    flag("landed"),
	}
}

// StartListening subscribes to telemetry and starts serving the operation
// queue. Call it once the coordinator is running.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pose, err := redisipc.Subscribe(r.ipc, PoseChannel, r.handlePose)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", PoseChannel, err)
	}
	r.subs = append(r.subs, pose)

	twist, err := redisipc.Subscribe(r.ipc, TwistChannel, r.handleTwist)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TwistChannel, err)
	}
	r.subs = append(r.subs, twist)

	link, err := redisipc.Subscribe(r.ipc, LinkChannel, func(l types.LinkState) error {
		r.handleLink(l)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", LinkChannel, err)
	}
	r.subs = append(r.subs, link)
	r.logger.Infof("Subscribed to Redis channels: %s, %s, %s", PoseChannel, TwistChannel, LinkChannel)

	r.queue = redisipc.HandleRequests(r.ipc, OperationQueue, r.handleOperationRequest)
	r.logger.Infof("Serving operation requests on %s", OperationQueue)
	return nil
}

func (r *RedisClient) handlePose(p types.Pose) error {
	r.mu.Lock()
	r.pose = p
	r.mu.Unlock()
	return nil
}

func (r *RedisClient) handleTwist(t types.Twist) error {
	r.mu.Lock()
	r.twist = t
	r.mu.Unlock()
	return nil
}

func (r *RedisClient) handleLink(l types.LinkState) {
	r.mu.Lock()
	prev := r.link
	r.link = l
	r.mu.Unlock()

	if prev != l {
		r.logger.Debugf("Link: connected=%v armed=%v mode=%s landed=%v", l.Connected, l.Armed, l.Mode, l.Landed)
		if r.callbacks.LinkCallback != nil {
			r.callbacks.LinkCallback(l)
		}
	}
}

func (r *RedisClient) handleOperationRequest(req OperationRequest) error {
	r.logger.Debugf("Received operation request: id=%s operation=%s", req.ID, req.Operation)
	if req.Operation == "" {
		return fmt.Errorf("operation request without operation")
	}
	if r.callbacks.OperationCallback == nil {
		return nil
	}
	if err := r.callbacks.OperationCallback(req); err != nil {
		r.logger.Warnf("Error handling %s request: %v", req.Operation, err)
		return err
	}
	return nil
}

func (r *RedisClient) Pose() types.Pose {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pose
}

func (r *RedisClient) Twist() types.Twist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.twist
}

func (r *RedisClient) Link() types.LinkState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.link
}

func (r *RedisClient) SetMode(mode string) error {
	r.logger.Infof("Requesting flight mode %s", mode)
	return r.SendCommand(Command{Command: "set-mode", Mode: mode})
}

func (r *RedisClient) Arm() error {
	r.logger.Infof("Requesting arm")
	return r.SendCommand(Command{Command: "arm"})
}

func (r *RedisClient) SendCommand(cmd Command) error {
	if err := redisipc.SendRequest(r.ipc, CommandQueue, cmd); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd.Command, err)
	}
	return nil
}

func (r *RedisClient) PublishSetpoint(sp types.Setpoint) error {
	return redisipc.PublishTyped(r.ipc, SetpointChannel, sp)
}

// PublishStatus writes the status hash and announces it with a single
// "status" notification.
func (r *RedisClient) PublishStatus(st types.Status) error {
	if err := r.status.SetManyPublishOne(st.Fields(), "status"); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

func (r *RedisClient) PublishOperationResult(res OperationResult) error {
	r.logger.Debugf("Publishing result: id=%s operation=%s outcome=%s", res.ID, res.Operation, res.Outcome)
	return redisipc.PublishTyped(r.ipc, ResultChannel, res, redisipc.Sync())
}

func (r *RedisClient) RecordTracking(s types.TrackingSample) error {
	if _, err := r.tracking.Add(s.Fields()); err != nil {
		return fmt.Errorf("failed to record tracking: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	var err error
	if r.queue != nil {
		r.queue.Stop()
	}
	for _, s := range r.subs {
		err = multierr.Append(err, s.Unsubscribe())
	}
	r.subs = nil
	if r.ipc != nil {
		err = multierr.Append(err, r.ipc.Close())
	}
	return err
}
