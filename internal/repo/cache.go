package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/ledger-core/internal/model"
)

func walletKey(userID string) string { return fmt.Sprintf("wallet:%s", userID) }

// cachedWallet carries the row version next to the wallet, which hides it from JSON.
type cachedWallet struct {
	Version uint64        `json:"version"`
	Wallet  *model.Wallet `json:"wallet"`
}

// setIfNewer writes ARGV[2] unless the stored entry has a higher version than ARGV[1].
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and tonumber(doc['version']) and tonumber(doc['version']) > tonumber(ARGV[1]) then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// CacheWallet writes Redis unless a newer version is already cached, so a
// writer that lost the race after commit cannot replace a fresher balance.
// A repository without Redis skips silently.
func (r *Repository) CacheWallet(ctx context.Context, w *model.Wallet) error {
	if r.rdb == nil {
		return nil
	}
	b, err := json.Marshal(cachedWallet{Version: w.Version, Wallet: w})
	if err != nil {
		return err
	}
	_, err = setIfNewer.Run(ctx, r.rdb, []string{walletKey(w.UserID)},
		w.Version, string(b), r.cacheTTL.Milliseconds()).Result()
	return err
}

// GetCachedWallet reads Redis. A miss is reported as NotFound.
func (r *Repository) GetCachedWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	if r.rdb == nil {
		return nil, model.Errorf(model.KindNotFound, "cache disabled")
	}
	b, err := r.rdb.Get(ctx, walletKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.Errorf(model.KindNotFound, "wallet %s not cached", userID)
	}
	if err != nil {
		return nil, err
	}
	var c cachedWallet
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.Wallet == nil {
		return nil, model.Errorf(model.KindNotFound, "wallet %s not cached", userID)
	}
	c.Wallet.Version = c.Version
	return c.Wallet, nil
}
