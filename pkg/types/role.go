package types

type Role string

const (
	RoleAgent              Role = "agent"
	RoleAgentPro           Role = "agent_pro"
	RoleManagerPro         Role = "manager_pro"
	RoleManagerProGold     Role = "manager_pro_gold"
	RoleManagerProPlatinum Role = "manager_pro_platinum"
)

// Ranking orders paid roles. The base role and roles missing from the
// ranking have no rank.
type Ranking struct {
	base  Role
	ranks map[Role]int
}

func NewRanking(base Role, paid ...Role) Ranking {
	r := Ranking{base: base, ranks: make(map[Role]int, len(paid))}
	for i, role := range paid {
		if role == base {
			continue
		}
		r.ranks[role] = i + 1
	}
	return r
}

// DefaultRanking is agent_pro < manager_pro < manager_pro_gold < manager_pro_platinum.
func DefaultRanking() Ranking {
	return NewRanking(RoleAgent, RoleAgentPro, RoleManagerPro, RoleManagerProGold, RoleManagerProPlatinum)
}

func (r Ranking) Base() Role {
	return r.base
}

func (r Ranking) IsBase(role Role) bool {
	return role == r.base
}

// Rank returns the tier of role and whether it is ranked at all.
func (r Ranking) Rank(role Role) (int, bool) {
	n, ok := r.ranks[role]
	return n, ok
}
