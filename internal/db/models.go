package db

// recordRow is one line of the user/app/group/gear/component join. Columns
// right of an outer join are nil when the parent has no children.
type recordRow struct {
	Login          string
	AppID          *string
	AppName        *string
	AppProfile     *string
	GroupID        *string
	GearID         *string
	GearProfile    *string
	ServerIdentity *string
	Descriptor     *string
}
