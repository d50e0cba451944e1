package protocol

import "github.com/nbd-wtf/go-nostr"

// Event kinds reserved by the protocol.
const (
	EncryptedDirectMessageKind = nostr.KindEncryptedDirectMessage
	ContractRequestKind        = 16970
	ContractApprovalKind       = 16971
)

// Tag names.
const (
	FileHashTag = "x"
	NetworkTag  = "n"
	PubkeyTag   = "p"
	EventTag    = "e"
)

// Kinds lists every kind the protocol dispatches on.
func Kinds() []int {
	return []int{ContractRequestKind, ContractApprovalKind, EncryptedDirectMessageKind}
}

func KindName(kind int) string {
	switch kind {
	case ContractRequestKind:
		return "contract_request"
	case ContractApprovalKind:
		return "contract_approval"
	case EncryptedDirectMessageKind:
		return "encrypted_direct_message"
	default:
		return "unknown"
	}
}

// Filters selects every protocol event tagging pubkey: requests naming it as
// participant, approvals of those requests and direct messages to it.
func Filters(pubkey string, since nostr.Timestamp) nostr.Filters {
	filter := nostr.Filter{
		Kinds: Kinds(),
		Tags:  nostr.TagMap{PubkeyTag: []string{pubkey}},
	}
	if since > 0 {
		filter.Since = &since
	}
	return nostr.Filters{filter}
}
