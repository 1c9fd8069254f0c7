package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Red    = "\033[31m"
	Yellow = "\033[33m"
)

// Cache-related log prefixes
const (
	LogCacheInit     = Blue + "[Cache:Init]" + Reset
	LogCacheClear    = Blue + "[Cache:Clear]" + Reset
	LogCacheLyrics   = Green + "[Cache:Lyrics]" + Reset
	LogCacheNegative = Cyan + "[Cache:Negative]" + Reset
	LogCacheEvict    = Cyan + "[Cache:Evict]" + Reset
	LogInFlight      = Cyan + "[InFlight]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// ProviderPrefix returns a colored provider prefix, e.g. "[Provider:lrclib]"
func ProviderPrefix(name string) string {
	return Blue + "[Provider:" + name + "]" + Reset
}

// Server/Init log prefixes
const (
	LogServer   = Green + "[Server]" + Reset
	LogConfig   = Cyan + "[Config]" + Reset
	LogStats    = Blue + "[Stats]" + Reset
	LogWatcher  = Cyan + "[Watcher]" + Reset
	LogNotifier = Yellow + "[Notifier]" + Reset
)

// Resolution log prefixes
const (
	LogRequest    = Purple + "[Request]" + Reset
	LogSearch     = Blue + "[Search]" + Reset
	LogHTTP       = Cyan + "[HTTP]" + Reset
	LogMatch      = Green + "[Match]" + Reset
	LogSuccess    = Green + "[Success]" + Reset
	LogLyrics     = Blue + "[Lyrics]" + Reset
	LogNotFound   = Cyan + "[NotFound]" + Reset
	LogFallback   = Cyan + "[Fallback]" + Reset
	LogNowPlaying = Green + "[NowPlaying]" + Reset
)
