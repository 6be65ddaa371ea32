package redis

// Lua numbers are doubles, so counters are written back with '%.0f' to keep
// millisecond timestamps out of exponent notation.
const (
	// ensureDayScript creates an empty day row if none exists
	ensureDayScript = `
local day_key = KEYS[1]     -- focusd:relax:day:{day}
local days_set = KEYS[2]    -- focusd:relax:days

if redis.call('EXISTS', day_key) == 0 then
  redis.call('HSET', day_key, 'used_ms', '0')
end
redis.call('SADD', days_set, ARGV[1])

return 'OK'
`

	// openIntervalScript sets active_since_ms only when the row is idle
	openIntervalScript = `
local day_key = KEYS[1]     -- focusd:relax:day:{day}
local days_set = KEYS[2]    -- focusd:relax:days

local day = ARGV[1]
local since_ms = ARGV[2]

local used = tonumber(redis.call('HGET', day_key, 'used_ms'))
if not used or used < 0 then
  used = 0
end
used = math.floor(used)

local active = tonumber(redis.call('HGET', day_key, 'active_since_ms'))
if active and active > 0 then
  return 0
end

redis.call('HSET', day_key,
  'used_ms', string.format('%.0f', used),
  'active_since_ms', since_ms
)
redis.call('SADD', days_set, day)

return 1
`

	// closeIntervalScript commits max(0, now - active_since_ms) and clears
	// the open interval. Returns {closed, since, committed, used}.
	closeIntervalScript = `
local day_key = KEYS[1]     -- focusd:relax:day:{day}
local now_ms = tonumber(ARGV[1])

if redis.call('EXISTS', day_key) == 0 then
  return {0, 0, 0, 0}
end

local used = tonumber(redis.call('HGET', day_key, 'used_ms'))
if not used or used < 0 then
  used = 0
end
used = math.floor(used)

local since = tonumber(redis.call('HGET', day_key, 'active_since_ms'))
if not since or since <= 0 then
  return {0, 0, 0, used}
end
since = math.floor(since)

local delta = now_ms - since
if delta < 0 then
  delta = 0
end
used = used + delta

redis.call('HSET', day_key, 'used_ms', string.format('%.0f', used))
redis.call('HDEL', day_key, 'active_since_ms')

return {1, since, delta, used}
`

	// commitSelectionScript bumps the item counters and moves the current
	// selection in one step
	commitSelectionScript = `
local item_key = KEYS[1]    -- focusd:rotation:item:{key}
local items_set = KEYS[2]   -- focusd:rotation:items
local state_key = KEYS[3]   -- focusd:rotation:state

local key = ARGV[1]
local item_type = ARGV[2]
local now_ms = ARGV[3]

local count = tonumber(redis.call('HGET', item_key, 'display_count'))
if not count or count < 0 then
  count = 0
end
count = math.floor(count) + 1

if redis.call('HEXISTS', item_key, 'item_type') == 0 then
  redis.call('HSET', item_key, 'item_type', item_type)
end
redis.call('HSET', item_key,
  'display_count', string.format('%.0f', count),
  'last_shown_ms', now_ms
)
redis.call('SADD', items_set, key)
redis.call('HSET', state_key,
  'current_key', key,
  'last_change_ms', now_ms
)

return count
`
)
