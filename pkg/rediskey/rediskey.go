package rediskey

import "fmt"

// Key conventions shared by the engine and the worker.
const (
	DistributionRunPrefix = "distribution:run"
	RankBonusRunPrefix    = "rankbonus:run"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDistributionRunKey returns "distribution:run:{YYYY-MM-DD}".
func BuildDistributionRunKey(date string) string {
	return NamespaceKey(DistributionRunPrefix, date)
}

// BuildRankBonusRunKey returns "rankbonus:run:{YYYY-MM}".
func BuildRankBonusRunKey(month string) string {
	return NamespaceKey(RankBonusRunPrefix, month)
}

// BuildSequenceKey returns "seq:{prefix}:{period}".
func BuildSequenceKey(prefix, period string) string {
	return NamespaceKey("seq", NamespaceKey(prefix, period))
}
