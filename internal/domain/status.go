package domain

// Status tracks a record through its local lifecycle. The pending-sync to
// synced transition is one-way: a synced order never reverts.
type Status string

const (
	StatusActive      Status = "active"
	StatusHeld        Status = "held"
	StatusPendingSync Status = "pending-sync"
	StatusSynced      Status = "synced"
)

var validNext = map[Status]map[Status]bool{
	StatusActive:      {StatusHeld: true, StatusPendingSync: true},
	StatusHeld:        {StatusActive: true, StatusPendingSync: true},
	StatusPendingSync: {StatusSynced: true},
	StatusSynced:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
