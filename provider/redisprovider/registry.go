package redisprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ggoodman/matchsession-go/provider"
	"github.com/redis/go-redis/v9"
)

// Hash fields of an advertised session.
const (
	fieldOwner    = "owner"
	fieldHostAddr = "host_addr"
	fieldSettings = "settings"
	fieldOpen     = "open"
	fieldStarted  = "started"
)

// maxTxRetries bounds optimistic transaction retries on contended sessions.
const maxTxRetries = 5

// --- Key helpers ---

func (p *Provider) sessionKey(id string) string { return p.keyPrefix + "session:" + id }
func (p *Provider) membersKey(id string) string { return p.keyPrefix + "members:" + id }
func (p *Provider) indexKey() string            { return p.keyPrefix + "index" }
func (p *Provider) seqKey() string              { return p.keyPrefix + "seq" }

type record struct {
	id       string
	owner    provider.NetID
	hostAddr string
	settings provider.Settings
	open     int
	started  bool
}

func decodeRecord(id string, vals map[string]string) (*record, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	r := &record{
		id:       id,
		owner:    provider.NetID(vals[fieldOwner]),
		hostAddr: vals[fieldHostAddr],
		started:  vals[fieldStarted] == "1",
	}
	if err := json.Unmarshal([]byte(vals[fieldSettings]), &r.settings); err != nil {
		return nil, fmt.Errorf("decode settings of session %s: %w", id, err)
	}
	open, err := strconv.Atoi(vals[fieldOpen])
	if err != nil {
		return nil, fmt.Errorf("decode open slots of session %s: %w", id, err)
	}
	r.open = open
	return r, nil
}

func (p *Provider) advertise(ctx context.Context, id string, owner provider.NetID, settings provider.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	seq, err := p.client.Incr(ctx, p.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate session sequence: %w", err)
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, p.sessionKey(id), map[string]any{
			fieldOwner:    string(owner),
			fieldHostAddr: p.hostAddr,
			fieldSettings: string(data),
			fieldOpen:     settings.NumPublicConnections,
			fieldStarted:  "0",
		})
		pipe.ZAdd(ctx, p.indexKey(), redis.Z{Score: float64(seq), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("advertise session %s: %w", id, err)
	}
	return nil
}

func (p *Provider) search(ctx context.Context, player provider.NetID, search *provider.Search) ([]provider.SearchResult, error) {
	ids, err := p.client.ZRange(ctx, p.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, p.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	var (
		out   []provider.SearchResult
		stale []any
	)
	for i, cmd := range cmds {
		rec, err := decodeRecord(ids[i], cmd.Val())
		if err != nil {
			p.log.WarnContext(ctx, "redisprovider: skipping malformed session", "err", err)
			continue
		}
		if rec == nil {
			stale = append(stale, ids[i])
			continue
		}
		if !matches(rec, player, search) {
			continue
		}
		out = append(out, provider.SearchResult{
			SessionID:             rec.id,
			OwnerID:               rec.owner,
			OpenPublicConnections: rec.open,
			Settings:              rec.settings,
		})
		if len(out) == search.MaxResults {
			break
		}
	}

	if len(stale) > 0 {
		if err := p.client.ZRem(ctx, p.indexKey(), stale...).Err(); err != nil {
			p.log.DebugContext(ctx, "redisprovider: failed to prune index", "err", err)
		}
	}
	return out, nil
}

func matches(rec *record, player provider.NetID, search *provider.Search) bool {
	switch {
	case !rec.settings.ShouldAdvertise, rec.owner == player:
		return false
	case rec.settings.IsLANMatch != search.IsLANQuery:
		return false
	case search.PresenceOnly && !rec.settings.UsesPresence:
		return false
	case rec.started && !rec.settings.AllowJoinInProgress:
		return false
	}
	return true
}

// reserve takes one public slot of session id for player.
func (p *Provider) reserve(ctx context.Context, id string, player provider.NetID) (addr string, res provider.JoinResult, err error) {
	key, members := p.sessionKey(id), p.membersKey(id)
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		rec, err := decodeRecord(id, vals)
		if err != nil {
			return err
		}
		if rec == nil {
			res = provider.JoinSessionDoesNotExist
			return nil
		}
		if rec.owner == player {
			res = provider.JoinAlreadyInSession
			return nil
		}
		member, err := tx.SIsMember(ctx, members, string(player)).Result()
		if err != nil {
			return err
		}
		if member {
			res = provider.JoinAlreadyInSession
			return nil
		}
		if rec.open <= 0 {
			res = provider.JoinSessionIsFull
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, key, fieldOpen, -1)
			pipe.SAdd(ctx, members, string(player))
			return nil
		})
		if err != nil {
			return err
		}
		addr, res = rec.hostAddr, provider.JoinSuccess
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err = p.client.Watch(ctx, txf, key, members)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return "", provider.JoinUnknownError, fmt.Errorf("reserve slot in session %s: %w", id, err)
	}
	return addr, res, nil
}

// withdraw removes a hosted session from the registry, or gives back the
// slot a joined session occupies.
func (p *Provider) withdraw(ctx context.Context, l *local) error {
	id := l.session.SessionID
	if id == "" {
		return nil
	}
	if l.session.Hosting {
		_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, p.sessionKey(id), p.membersKey(id))
			pipe.ZRem(ctx, p.indexKey(), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("remove session %s: %w", id, err)
		}
		return nil
	}

	key, members := p.sessionKey(id), p.membersKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil || n == 0 {
			return err
		}
		member, err := tx.SIsMember(ctx, members, string(l.player)).Result()
		if err != nil || !member {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, members, string(l.player))
			pipe.HIncrBy(ctx, key, fieldOpen, 1)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = p.client.Watch(ctx, txf, key, members)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("leave session %s: %w", id, err)
	}
	return nil
}
