package common

// ConversationType represents the kind of conversation container
type ConversationType string

const (
	ConversationDirect      ConversationType = "direct"
	ConversationMarketplace ConversationType = "marketplace"
	ConversationEnquiry     ConversationType = "enquiry"
	ConversationNetwork     ConversationType = "network"
	ConversationSupport     ConversationType = "support"
)

// String returns the string representation
func (ct ConversationType) String() string {
	return string(ct)
}

// IsValid checks if the conversation type is valid
func (ct ConversationType) IsValid() bool {
	switch ct {
	case ConversationDirect, ConversationMarketplace, ConversationEnquiry,
		ConversationNetwork, ConversationSupport:
		return true
	}
	return false
}

// Tier is the subscription tier attached to an account. It drives the
// token-bucket capacity a sender gets.
type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
	TierPro  Tier = "pro"
)

func (t Tier) String() string {
	return string(t)
}

func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPlus || t == TierPro
}

// Role distinguishes the two sides of the marketplace
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleProvider Role = "provider"
)

func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleProvider
}

// ContextKind identifies which marketplace object a conversation hangs off
type ContextKind string

const (
	ContextPackage ContextKind = "package"
	ContextListing ContextKind = "listing"
	ContextProfile ContextKind = "profile"
)

// String returns the string representation
func (ck ContextKind) String() string {
	return string(ck)
}

func (ck ContextKind) IsValid() bool {
	return ck == ContextPackage || ck == ContextListing || ck == ContextProfile
}
