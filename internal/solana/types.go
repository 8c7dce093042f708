package solana

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// ParsedAccount is an account returned with jsonParsed encoding.
// Mint is set only when the account is an SPL token mint.
type ParsedAccount struct {
	Lamports uint64
	Owner    string
	Program  string // e.g. "spl-token", "spl-token-2022"
	Type     string // parsed account type, e.g. "mint"
	Mint     *MintInfo
}

// MintInfo is the parsed content of an SPL token mint account.
type MintInfo struct {
	Decimals        int
	Supply          string // raw integer amount as returned by RPC
	IsInitialized   bool
	MintAuthority   *string
	FreezeAuthority *string
}

// IsMint reports whether the parsed account is an SPL token mint.
func (a *ParsedAccount) IsMint() bool {
	return a != nil && a.Type == "mint" && a.Mint != nil
}
