package config

// NoCacheCfg lists requests that must bypass the cache entirely.
//
// Path rules match by substring anywhere in the URL. RPC rules apply to
// requests whose path contains RPCPathMarker: the request body is parsed
// as JSON and its "method" field is checked against RPCMethods. Signing,
// transfer and mint calls must never be cached regardless of URL.
type NoCacheCfg struct {
	// PathSubstrings always bypass, no body inspection.
	PathSubstrings []string `yaml:"path_substrings"`

	// RPCPathMarker flags a path as an RPC endpoint.
	RPCPathMarker string `yaml:"rpc_path_marker"`

	// RPCMethods is the denylist checked against the parsed body method.
	RPCMethods []string `yaml:"rpc_methods"`

	// RPCBodyLimitBytes caps how much of a body the classifier reads.
	// Bodies over the cap classify as uncacheable.
	RPCBodyLimitBytes int64 `yaml:"rpc_body_limit_bytes"`
}

func (cfg *NoCacheCfg) Enabled() bool {
	return cfg != nil
}
