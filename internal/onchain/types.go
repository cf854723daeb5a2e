package onchain

// Transfer is a single ERC-20 asset transfer touching a token contract.
type Transfer struct {
	// Value is the transfer amount in the token's smallest unit.
	Value    float64
	BlockNum int64
}

// Log is a decoded EVM event log entry.
type Log struct {
	BlockNumber int64
	TxHash      string
	Topics      []string
}

// TransferTopic is the keccak-256 signature of the ERC-20 Transfer event.
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
