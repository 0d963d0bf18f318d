package refresh

import "github.com/redis/go-redis/v9"

// rotateScript is the single atomic server-side operation of the whole
// subsystem. One round trip; every concurrent caller for the same old rid
// observes the poisoned/rotating state written by the winner. Dynamic record
// keys are built from ARGV[12], which assumes all auth keys live on a single
// Redis instance (no cluster slot hashing).
//
// KEYS[1] old record    KEYS[2] new record
// KEYS[3] user rid set  KEYS[4] user rid zset (score = creation/rotation time)
//
// ARGV: 1 now (unix s), 2 new rid, 3 replay grace (s), 4 stale-lock (s),
// 5 tombstone TTL (s), 6 idle TTL (s), 7 bind-ua flag, 8 bind-ip flag,
// 9 caller ua hash, 10 caller ip hint, 11 max families, 12 record key prefix,
// 13 terminal flag (logout).
//
// Returns {outcome, successor rid}.
var rotateScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local newRid = ARGV[2]
local grace = tonumber(ARGV[3])
local lockTtl = tonumber(ARGV[4])
local tomb = tonumber(ARGV[5])
local idle = tonumber(ARGV[6])
local bindUA = ARGV[7] == "1"
local bindIP = ARGV[8] == "1"
local ua = ARGV[9]
local ip = ARGV[10]
local maxFam = tonumber(ARGV[11])
local prefix = ARGV[12]
local terminal = ARGV[13] == "1"

local oldKey = KEYS[1]
local newKey = KEYS[2]
local setKey = KEYS[3]
local zKey = KEYS[4]

if redis.call("EXISTS", oldKey) == 0 then
  return {"not_found", ""}
end

local oldRid = redis.call("HGET", oldKey, "rid")

if redis.call("HGET", oldKey, "poisoned") == "1" then
  local rotatedAt = tonumber(redis.call("HGET", oldKey, "rotated_at") or "0")
  local successor = redis.call("HGET", oldKey, "rotated_to") or ""
  local boundUA = redis.call("HGET", oldKey, "ua_hash") or ""
  local boundIP = redis.call("HGET", oldKey, "ip_hint") or ""
  local uaOk = (not bindUA) or boundUA == "" or boundUA == ua
  local ipOk = (not bindIP) or boundIP == "" or boundIP == ip
  if successor ~= "" and (now - rotatedAt) <= grace and uaOk and ipOk then
    return {"already_rotated", successor}
  end
  return {"reused", ""}
end

if terminal then
  redis.call("HSET", newKey,
    "rid", newRid,
    "user_id", redis.call("HGET", oldKey, "user_id") or "",
    "created_at", now,
    "absolute_exp_at", now,
    "poisoned", "1",
    "rotated_at", now)
  redis.call("EXPIRE", newKey, tomb)
  redis.call("HSET", oldKey, "poisoned", "1", "rotated_to", newRid, "rotated_at", now)
  redis.call("HDEL", oldKey, "rotating")
  redis.call("EXPIRE", oldKey, tomb)
  redis.call("SREM", setKey, oldRid)
  redis.call("ZREM", zKey, oldRid)
  return {"rotated", newRid}
end

local rotatingAt = tonumber(redis.call("HGET", oldKey, "rotating") or "0")
if rotatingAt > 0 and (now - rotatingAt) < lockTtl then
  return {"busy", ""}
end
redis.call("HSET", oldKey, "rotating", now)

local boundUA = redis.call("HGET", oldKey, "ua_hash") or ""
if bindUA and boundUA ~= "" and boundUA ~= ua then
  redis.call("HDEL", oldKey, "rotating")
  return {"binding_mismatch", ""}
end
local boundIP = redis.call("HGET", oldKey, "ip_hint") or ""
if bindIP and boundIP ~= "" and boundIP ~= ip then
  redis.call("HDEL", oldKey, "rotating")
  return {"binding_mismatch", ""}
end

local absExp = tonumber(redis.call("HGET", oldKey, "absolute_exp_at") or "0")
local ttl = absExp - now
if idle < ttl then
  ttl = idle
end
if ttl <= 0 then
  redis.call("HDEL", oldKey, "rotating")
  return {"expired", ""}
end

local userId = redis.call("HGET", oldKey, "user_id") or ""
local remember = redis.call("HGET", oldKey, "remember_me") or "0"
redis.call("HSET", newKey,
  "rid", newRid,
  "user_id", userId,
  "remember_me", remember,
  "ua_hash", ua,
  "ip_hint", ip,
  "created_at", now,
  "last_used_at", now,
  "absolute_exp_at", absExp,
  "poisoned", "0")
redis.call("EXPIRE", newKey, ttl)

redis.call("HSET", oldKey, "poisoned", "1", "rotated_to", newRid, "rotated_at", now)
redis.call("HDEL", oldKey, "rotating")
redis.call("EXPIRE", oldKey, tomb)

redis.call("SREM", setKey, oldRid)
redis.call("SADD", setKey, newRid)
redis.call("ZREM", zKey, oldRid)
redis.call("ZADD", zKey, now, newRid)

local n = redis.call("ZCARD", zKey)
if maxFam > 0 and n > maxFam then
  local surplus = redis.call("ZRANGE", zKey, 0, n - maxFam - 1)
  for _, rid in ipairs(surplus) do
    redis.call("DEL", prefix .. rid)
    redis.call("ZREM", zKey, rid)
    redis.call("SREM", setKey, rid)
  end
end

return {"rotated", newRid}
`)
