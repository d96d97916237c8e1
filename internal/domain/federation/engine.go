// Package federation builds the aggregated, read-mostly view a master
// facility presents: local rows first, then rows fetched concurrently from
// every registered peer, each tagged with its facility and display id.
// Mutations are only ever applied to the local store.
package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carenet/carenet/internal/domain/records"
	"github.com/carenet/carenet/internal/platform/facility"
	"github.com/carenet/carenet/internal/platform/peer"
)

// UnknownFacility names a peer whose health check failed.
const UnknownFacility = "Unknown"

// StatusConflict marks a peer that reports the local facility's name.
const StatusConflict = "CONFLICT"

var (
	// ErrPermissionDenied is returned when a mutation targets a row owned by
	// another facility.
	ErrPermissionDenied = errors.New("row belongs to another facility")
	// ErrPeerUnreachable is returned when a peer fails its health check at
	// registration.
	ErrPeerUnreachable = errors.New("peer did not answer its health check")
	// ErrPeerExists is returned when the peer URL is already registered.
	ErrPeerExists = errors.New("peer already registered")
	// ErrPeerConflict is returned when a peer reports the local facility's
	// name, which would make its rows indistinguishable from local ones.
	ErrPeerConflict = errors.New("peer reports the local facility name")
	// ErrInvalidPeerURL is returned for peer URLs that are not absolute
	// http(s) URLs.
	ErrInvalidPeerURL = errors.New("invalid peer url")
)

// Remote is the subset of peer.Client the engine uses.
type Remote interface {
	BaseURL() string
	CheckHealth(ctx context.Context) (peer.Health, bool)
	List(ctx context.Context, kind records.Kind, term string) ([]records.Row, bool)
}

// TaggedRow is a row annotated with its origin.
type TaggedRow struct {
	DisplayID facility.DisplayID `json:"display_id"`
	Facility  string             `json:"facility"`
	Local     bool               `json:"local"`
	Row       records.Row        `json:"row"`
}

// PeerStatus is the outcome of contacting one peer.
type PeerStatus struct {
	URL      string `json:"url"`
	Facility string `json:"facility"`
	Prefix   string `json:"prefix"`
	Online   bool   `json:"online"`
	Status   string `json:"status"`
	Rows     int    `json:"rows"`
	Dropped  int    `json:"dropped,omitempty"`
}

func newPeerStatus(url, name, prefix string, online bool) PeerStatus {
	status := "OFFLINE"
	if online {
		status = "ONLINE"
	}
	return PeerStatus{URL: url, Facility: name, Prefix: prefix, Online: online, Status: status}
}

// View is an aggregated result: local rows first, then peer rows in
// registration order.
type View struct {
	Kind  records.Kind `json:"kind"`
	Rows  []TaggedRow  `json:"rows"`
	Peers []PeerStatus `json:"peers"`
}

// RowRef identifies a row in a view for mutation.
type RowRef struct {
	Facility string             `json:"facility"`
	ID       facility.DisplayID `json:"id"`
}

// Config describes the local facility and how peers are reached.
type Config struct {
	FacilityName string
	Master       bool
	Resolver     *facility.Resolver
	PeerOptions  peer.Options
	// Dial builds a Remote for a peer URL. Defaults to peer.NewClient.
	Dial   func(url string) Remote
	Logger zerolog.Logger
}

// Engine aggregates the local store with registered peers.
type Engine struct {
	svc      *records.Service
	name     string
	prefix   string
	master   bool
	resolver *facility.Resolver
	dial     func(url string) Remote
	logger   zerolog.Logger

	mu      sync.RWMutex
	remotes []Remote
}

func NewEngine(svc *records.Service, cfg Config) *Engine {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = facility.NewResolver(facility.DefaultAliases())
	}
	dial := cfg.Dial
	if dial == nil {
		opts := cfg.PeerOptions
		opts.Logger = cfg.Logger
		dial = func(url string) Remote { return peer.NewClient(url, opts) }
	}
	return &Engine{
		svc:      svc,
		name:     cfg.FacilityName,
		prefix:   resolver.Prefix(cfg.FacilityName),
		master:   cfg.Master,
		resolver: resolver,
		dial:     dial,
		logger:   cfg.Logger,
	}
}

// FacilityName returns the local facility name.
func (e *Engine) FacilityName() string { return e.name }

// Prefix returns the local display-id prefix.
func (e *Engine) Prefix() string { return e.prefix }

// Master reports whether the engine queries peers.
func (e *Engine) Master() bool { return e.master }

func (e *Engine) snapshot() []Remote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Remote, len(e.remotes))
	copy(out, e.remotes)
	return out
}

// Load returns every row of kind across the federation.
func (e *Engine) Load(ctx context.Context, kind records.Kind) (*View, error) {
	return e.Search(ctx, kind, "")
}

// Search returns rows of kind matching term across the federation. Local
// store failures are returned; peer failures only mark the peer offline.
func (e *Engine) Search(ctx context.Context, kind records.Kind, term string) (*View, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", records.ErrUnknownKind, kind)
	}
	term = strings.TrimSpace(term)
	local, err := e.svc.List(ctx, kind, term)
	if err != nil {
		return nil, err
	}

	view := &View{Kind: kind, Rows: make([]TaggedRow, 0, len(local)), Peers: []PeerStatus{}}
	for _, row := range local {
		id, _ := row.ID(kind)
		view.Rows = append(view.Rows, TaggedRow{
			DisplayID: facility.NewDisplayID(e.prefix, id),
			Facility:  e.name,
			Local:     true,
			Row:       row,
		})
	}
	if !e.master {
		return view, nil
	}

	remotes := e.snapshot()
	results := make([]peerResult, len(remotes))
	var wg sync.WaitGroup
	for i, r := range remotes {
		wg.Add(1)
		go func(idx int, r Remote) {
			defer wg.Done()
			results[idx] = e.queryPeer(ctx, r, kind, term)
		}(i, r)
	}
	wg.Wait()

	for _, res := range results {
		view.Rows = append(view.Rows, res.rows...)
		view.Peers = append(view.Peers, res.status)
	}
	e.logger.Debug().
		Str("kind", string(kind)).
		Int("local_rows", len(local)).
		Int("total_rows", len(view.Rows)).
		Int("peers", len(remotes)).
		Msg("view aggregated")
	return view, nil
}

type peerResult struct {
	rows   []TaggedRow
	status PeerStatus
}

// queryPeer runs the health check and the listing in parallel so a peer
// costs at most the larger of the two timeouts.
func (e *Engine) queryPeer(ctx context.Context, r Remote, kind records.Kind, term string) peerResult {
	var (
		health  peer.Health
		healthy bool
		rows    []records.Row
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		health, healthy = r.CheckHealth(ctx)
	}()
	go func() {
		defer wg.Done()
		rows, _ = r.List(ctx, kind, term)
	}()
	wg.Wait()

	name := UnknownFacility
	if healthy && health.Hospital != "" {
		name = health.Hospital
	}
	prefix := e.resolver.Prefix(name)
	res := peerResult{status: newPeerStatus(r.BaseURL(), name, prefix, healthy)}
	if e.conflicts(name) {
		res.status.Status = StatusConflict
		res.status.Dropped = len(rows)
		e.logger.Warn().Str("peer", r.BaseURL()).Str("facility", name).
			Msg("peer reports the local facility name; rows dropped")
		return res
	}

	for _, row := range rows {
		// Older peers ignore search for some tables.
		if !records.MatchRow(row, term) {
			continue
		}
		id, ok := row.ID(kind)
		if !ok || id <= 0 {
			res.status.Dropped++
			continue
		}
		res.rows = append(res.rows, TaggedRow{
			DisplayID: facility.NewDisplayID(prefix, id),
			Facility:  name,
			Row:       row,
		})
	}
	res.status.Rows = len(res.rows)
	if res.status.Dropped > 0 {
		e.logger.Warn().Str("peer", r.BaseURL()).Int("dropped", res.status.Dropped).
			Msg("peer rows without a usable key dropped")
	}
	return res
}

// RegisterRemote adds a peer if it answers its health check now.
func (e *Engine) RegisterRemote(ctx context.Context, url string) (*PeerStatus, error) {
	if err := peer.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerURL, err)
	}
	url = peer.NormalizeURL(url)
	if e.registered(url) {
		return nil, fmt.Errorf("%w: %s", ErrPeerExists, url)
	}

	r := e.dial(url)
	health, ok := r.CheckHealth(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, url)
	}
	if e.conflicts(health.Hospital) {
		return nil, fmt.Errorf("%w: %s at %s", ErrPeerConflict, health.Hospital, url)
	}

	e.mu.Lock()
	for _, existing := range e.remotes {
		if existing.BaseURL() == url {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrPeerExists, url)
		}
	}
	e.remotes = append(e.remotes, r)
	e.mu.Unlock()

	name := health.Hospital
	if name == "" {
		name = UnknownFacility
	}
	st := newPeerStatus(url, name, e.resolver.Prefix(name), true)
	e.logger.Info().Str("peer", url).Str("facility", name).Msg("peer registered")
	return &st, nil
}

// conflicts reports whether a peer named name would be tagged as local.
func (e *Engine) conflicts(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(e.name))
}

func (e *Engine) registered(url string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.remotes {
		if r.BaseURL() == url {
			return true
		}
	}
	return false
}

// Peers checks every registered peer concurrently and reports its status.
func (e *Engine) Peers(ctx context.Context) []PeerStatus {
	remotes := e.snapshot()
	out := make([]PeerStatus, len(remotes))
	var wg sync.WaitGroup
	for i, r := range remotes {
		wg.Add(1)
		go func(idx int, r Remote) {
			defer wg.Done()
			health, ok := r.CheckHealth(ctx)
			name := UnknownFacility
			if ok && health.Hospital != "" {
				name = health.Hospital
			}
			out[idx] = newPeerStatus(r.BaseURL(), name, e.resolver.Prefix(name), ok)
			if ok && e.conflicts(name) {
				out[idx].Status = StatusConflict
			}
		}(i, r)
	}
	wg.Wait()
	return out
}

// Insert always writes to the local store and returns the new row's
// display id.
func (e *Engine) Insert(ctx context.Context, kind records.Kind, ent records.Entity) (facility.DisplayID, error) {
	id, err := e.svc.Create(ctx, kind, ent)
	if err != nil {
		return facility.DisplayID{}, err
	}
	return facility.NewDisplayID(e.prefix, id), nil
}

// Update replaces a local row. Rows of other facilities are refused.
func (e *Engine) Update(ctx context.Context, kind records.Kind, ref RowRef, ent records.Entity) error {
	if err := e.authorize(ref); err != nil {
		return err
	}
	return e.svc.Update(ctx, kind, ref.ID.LocalID, ent)
}

// Delete removes a local row. Rows of other facilities are refused.
func (e *Engine) Delete(ctx context.Context, kind records.Kind, ref RowRef) error {
	if err := e.authorize(ref); err != nil {
		return err
	}
	return e.svc.Delete(ctx, kind, ref.ID.LocalID)
}

// authorize requires both the facility name and the prefix to be local,
// since distinct facilities can share a prefix.
func (e *Engine) authorize(ref RowRef) error {
	if ref.Facility != e.name || ref.ID.Prefix != e.prefix {
		return fmt.Errorf("%w: %s of %q", ErrPermissionDenied, ref.ID, ref.Facility)
	}
	return nil
}
