package signing

import (
	"context"
	"maps"
	"sync/atomic"
	"time"

	"github.com/ggonzalez94/wallet-cli/internal/consent"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/journal"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/logging"
	"github.com/ggonzalez94/wallet-cli/internal/metrics"
	"github.com/ggonzalez94/wallet-cli/internal/network"
)

// DefaultOrigin labels requests raised by the wallet itself.
const DefaultOrigin = "wallet-cli"

var lastRequestID atomic.Int64

func nextRequestID() int64 { return lastRequestID.Add(1) }

// KeyResolver looks up signing capabilities and signs in software.
type KeyResolver interface {
	Resolve(publicKey string) (keys.Capability, error)
	SignSoftware(c keys.Capability, digest []byte) (keys.Signature, error)
}

// Journal records request lifecycles.
type Journal interface {
	Save(r journal.Record) error
}

type Broker struct {
	keys       KeyResolver
	channel    consent.Channel
	origin     string
	blockchain string
	timeout    time.Duration
	journal    Journal
	metrics    *metrics.Metrics
	logger     logging.Logger
	now        func() time.Time
}

type Option func(*Broker)

func WithOrigin(origin string) Option {
	return func(b *Broker) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// WithTimeout bounds the wait for consent. Zero waits until the caller's
// context ends.
func WithTimeout(d time.Duration) Option {
	return func(b *Broker) { b.timeout = d }
}

func WithJournal(j Journal) Option {
	return func(b *Broker) { b.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

func WithLogger(lg logging.Logger) Option {
	return func(b *Broker) {
		if lg != nil {
			b.logger = lg
		}
	}
}

func WithBlockchain(tag string) Option {
	return func(b *Broker) { b.blockchain = tag }
}

func NewBroker(resolver KeyResolver, channel consent.Channel, opts ...Option) *Broker {
	b := &Broker{
		keys:    resolver,
		channel: channel,
		origin:  DefaultOrigin,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type RequestOptions struct {
	// Prompt asks the consent channel before signing.
	Prompt         bool
	Origin         string
	RequiredFields map[string]any
}

// RequestSignature signs tx for account. With Prompt set, the user must
// approve first; a refusal or missing answer yields CodeUserRejected.
func (b *Broker) RequestSignature(ctx context.Context, tx UnsignedTransaction, account network.Account, net network.Identity, opts RequestOptions) (keys.Signature, error) {
	if tx == nil {
		return nil, clierr.New(clierr.CodeInternal, "no transaction to sign")
	}
	origin := b.origin
	if opts.Origin != "" {
		origin = opts.Origin
	}
	path := metrics.PathDirect
	var raw []byte
	if opts.Prompt {
		path = metrics.PathInteractive
		var err error
		if raw, err = tx.Raw(); err != nil {
			return nil, err
		}
	}

	t := &tracker{
		broker: b,
		life:   lifecycle{state: StateCreated},
		record: journal.NewRecord(nextRequestID(), b.now()),
		path:   path,
	}
	t.record.Blockchain = b.blockchain
	t.record.Network = net.Unique()
	t.record.PublicKey = account.PublicKey
	t.record.Origin = origin
	t.record.Path = path
	t.record.State = string(StateCreated)
	if h, ok := tx.(interface{ Hash() string }); ok {
		t.record.TxID = h.Hash()
	}
	t.logger = b.logger.With("request_id", t.record.RequestID).With("network", t.record.Network)
	t.save()

	if !opts.Prompt {
		if err := t.to(StateApproved, nil); err != nil {
			return nil, err
		}
		return t.signDirect(tx, account)
	}

	required := maps.Clone(opts.RequiredFields)
	if required == nil {
		required = map[string]any{}
	}
	req := &Request{
		Payload:        Payload{Messages: tx.Messages(), Transaction: raw},
		Participants:   []network.Account{account},
		Origin:         origin,
		Type:           consent.RequestTypeSignature,
		ID:             t.record.RequestID,
		RequiredFields: required,
		Blockchain:     b.blockchain,
		Network:        net,
	}
	if err := t.to(StatePendingApproval, nil); err != nil {
		return nil, err
	}
	if b.channel == nil {
		rerr := clierr.New(clierr.CodeUserRejected, "no consent channel configured")
		_ = t.to(StateRejected, rerr)
		return nil, rerr
	}

	waitCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	started := time.Now()
	res, err := b.channel.Request(waitCtx, req.prompt())
	b.metrics.ObserveConsentWait(time.Since(started))

	switch {
	case err != nil && waitCtx.Err() != nil:
		cerr := clierr.Wrap(clierr.CodeConsentTimeout, "consent was not given in time", err)
		_ = t.to(StateExpired, cerr)
		return nil, cerr
	case err != nil:
		rerr := clierr.Wrap(clierr.CodeUserRejected, "consent channel returned no answer", err)
		_ = t.to(StateRejected, rerr)
		return nil, rerr
	case res == nil || !res.Accepted:
		rerr := clierr.New(clierr.CodeUserRejected, "user rejected the signature request")
		_ = t.to(StateRejected, rerr)
		return nil, rerr
	}

	if err := t.to(StateApproved, nil); err != nil {
		return nil, err
	}
	return t.signApproved(ctx, tx, req, account, net)
}

// tracker carries one request through its lifecycle.
type tracker struct {
	broker *Broker
	life   lifecycle
	record journal.Record
	path   string
	logger logging.Logger
}

func (t *tracker) to(state State, cause error) error {
	if err := t.life.advance(state); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "signing request state", err)
	}
	t.record.State = string(state)
	t.record.UpdatedAt = t.broker.now().UTC().Format(time.RFC3339)
	if cause != nil {
		t.record.Error = cause.Error()
	}
	t.logger.Info("signing request transition", "state", state, "path", t.path)
	t.save()
	if state.Terminal() {
		t.broker.metrics.ObserveOutcome(t.path, outcomeFor(state, cause))
	}
	return nil
}

func (t *tracker) save() {
	if t.broker.journal == nil {
		return
	}
	if err := t.broker.journal.Save(t.record); err != nil {
		t.logger.Warn("failed to journal signing request", "error", err)
	}
}

func (t *tracker) fail(err error) error {
	if !clierr.Is(err, clierr.CodeKeyNotFound) && !clierr.Is(err, clierr.CodeSigningFailed) {
		err = clierr.Wrap(clierr.CodeSigningFailed, "signer failed", err)
	}
	_ = t.to(StateSigningFailed, err)
	return err
}

// signDirect signs without consent. Only software keys may sign this way.
func (t *tracker) signDirect(tx UnsignedTransaction, account network.Account) (keys.Signature, error) {
	capability, err := t.broker.keys.Resolve(account.PublicKey)
	if err != nil {
		return nil, t.fail(err)
	}
	if capability.IsHardware() {
		return nil, t.fail(clierr.New(clierr.CodeSigningFailed, "hardware keys require interactive approval"))
	}
	return t.finish(t.signSoftware(tx, capability))
}

func (t *tracker) signApproved(ctx context.Context, tx UnsignedTransaction, req *Request, account network.Account, net network.Identity) (keys.Signature, error) {
	capability, err := t.broker.keys.Resolve(account.PublicKey)
	if err != nil {
		return nil, t.fail(err)
	}

	var sig keys.Signature
	if device, ok := capability.Hardware(); ok {
		t.broker.metrics.ObserveDispatch(keys.KindHardware.String())
		t.logger.Debug("dispatching to hardware signer")
		sig, err = device.Sign(ctx, account.PublicKey, keys.SignPayload{
			Messages:    req.Payload.Messages,
			Transaction: req.Payload.Transaction,
		}, net)
	} else {
		sig, err = t.signSoftware(tx, capability)
	}
	return t.finish(sig, err)
}

func (t *tracker) signSoftware(tx UnsignedTransaction, capability keys.Capability) (keys.Signature, error) {
	t.broker.metrics.ObserveDispatch(keys.KindSoftware.String())
	digest, err := tx.SigningDigest()
	if err != nil {
		return nil, err
	}
	return t.broker.keys.SignSoftware(capability, digest)
}

func (t *tracker) finish(sig keys.Signature, err error) (keys.Signature, error) {
	if err != nil {
		return nil, t.fail(err)
	}
	if len(sig) == 0 {
		return nil, t.fail(clierr.New(clierr.CodeSigningFailed, "signer returned an empty signature"))
	}
	if err := t.to(StateSigned, nil); err != nil {
		return nil, err
	}
	return sig, nil
}

func outcomeFor(state State, cause error) string {
	switch state {
	case StateSigned:
		return metrics.OutcomeSigned
	case StateRejected:
		return metrics.OutcomeRejected
	case StateExpired:
		return metrics.OutcomeConsentTimeout
	}
	if clierr.Is(cause, clierr.CodeKeyNotFound) {
		return metrics.OutcomeKeyNotFound
	}
	return metrics.OutcomeSigningFailed
}
