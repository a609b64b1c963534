package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The extraction prompt is identical across every job in a
// drain cycle, so caching it with a 1-hour TTL makes each call after the
// first read the prompt at the discounted cache rate.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}
