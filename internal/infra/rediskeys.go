package infra

const (
	// RedisNamespace изолирует ключи проекта в общем Redis.
	RedisNamespace = "folio"
)

// Ключи
const (
	RedisKeyDeadLetters = RedisNamespace + ":audit:dead-letters"
)

// Каналы Pub/Sub
const (
	// RedisChanSessionClose: id сессий, которые админка закрывает на всех инстансах.
	RedisChanSessionClose = RedisNamespace + ":chat:session-close"
	// RedisChanFactsReload просит все инстансы пересобрать каталог фактов.
	RedisChanFactsReload = RedisNamespace + ":facts:reload"
)
