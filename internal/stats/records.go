package stats

import (
	"regexp"
)

// UserRecord is a persisted user with its applications.
type UserRecord struct {
	Login        string
	Applications []ApplicationRecord
}

// ApplicationRecord is a persisted application with its instance groups.
type ApplicationRecord struct {
	ID      string
	Name    string
	Profile string
	Groups  []GroupRecord
}

// GroupRecord is an instance group within an application.
type GroupRecord struct {
	ID    string
	Gears []GearRecord
}

// GearRecord is an allocated gear. Components holds the installed cartridge
// descriptors, e.g. "redhat/cart-mysql-5.1/comp-mysql-server".
type GearRecord struct {
	ID         string
	Profile    string
	NodeID     string
	Components []string
}

var (
	cartridgeFullPattern  = regexp.MustCompile(`cart-([^/]+)`)
	cartridgeShortPattern = regexp.MustCompile(`cart-([^/]+?)-[\d.]+(?:/|$)`)
)

// MatchCartridgeName extracts the versioned cartridge name following "cart-".
func MatchCartridgeName(descriptor string) (string, bool) {
	m := cartridgeFullPattern.FindStringSubmatch(descriptor)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchCartridgeShortName extracts the cartridge name with its trailing
// "-<version>" removed.
func MatchCartridgeShortName(descriptor string) (string, bool) {
	m := cartridgeShortPattern.FindStringSubmatch(descriptor)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CartridgeNames returns the full and short names for a descriptor. A name
// that cannot be extracted falls back to the descriptor itself.
func CartridgeNames(descriptor string) (full, short string) {
	full, ok := MatchCartridgeName(descriptor)
	if !ok {
		full = descriptor
	}
	short, ok = MatchCartridgeShortName(descriptor)
	if !ok {
		short = descriptor
	}
	return full, short
}

func newRecordCounts() *RecordCounts {
	return &RecordCounts{
		Cartridges:      Histogram{},
		CartridgesShort: Histogram{},
	}
}

func newUserCount(login string) *UserCount {
	return &UserCount{
		Login:    login,
		Profiles: UserProfileCounts{},
	}
}

func newUserProfileCount() *UserProfileCount {
	return &UserProfileCount{}
}

// RecordCounter tallies persisted users, applications, gears and cartridges.
// Add may be called once per batch, in any order; the totals commute.
type RecordCounter struct {
	all       *RecordCounts
	byProfile map[string]*RecordCounts
	byUser    map[string]*UserCount
}

// NewRecordCounter returns an empty counter.
func NewRecordCounter() *RecordCounter {
	return &RecordCounter{
		all:       newRecordCounts(),
		byProfile: make(map[string]*RecordCounts),
		byUser:    make(map[string]*UserCount),
	}
}

func (c *RecordCounter) profileCounts(profile string) *RecordCounts {
	rc, ok := c.byProfile[profile]
	if !ok {
		rc = newRecordCounts()
		c.byProfile[profile] = rc
	}
	return rc
}

func (c *RecordCounter) userCount(login string) *UserCount {
	uc, ok := c.byUser[login]
	if !ok {
		uc = newUserCount(login)
		c.byUser[login] = uc
	}
	return uc
}

func (uc *UserCount) profile(profile string) *UserProfileCount {
	pc, ok := uc.Profiles[profile]
	if !ok {
		pc = newUserProfileCount()
		uc.Profiles[profile] = pc
	}
	return pc
}

// Add folds a batch of users into the counter.
func (c *RecordCounter) Add(users ...UserRecord) {
	for _, user := range users {
		uc := c.userCount(user.Login)
		for _, app := range user.Applications {
			c.all.Apps++
			c.profileCounts(app.Profile).Apps++
			uc.profile(app.Profile).Apps++
			uc.TotalApps++

			for _, group := range app.Groups {
				for _, gear := range group.Gears {
					c.addGear(uc, gear)
				}
			}
		}
	}
}

// addGear counts a gear and its cartridges under the gear's own profile,
// which may differ from its application's.
func (c *RecordCounter) addGear(uc *UserCount, gear GearRecord) {
	pc := c.profileCounts(gear.Profile)

	c.all.Gears++
	pc.Gears++
	uc.profile(gear.Profile).Gears++
	uc.TotalGears++

	for _, descriptor := range gear.Components {
		full, short := CartridgeNames(descriptor)
		c.all.Cartridges[full]++
		c.all.CartridgesShort[short]++
		pc.Cartridges[full]++
		pc.CartridgesShort[short]++
	}
}

// Result returns the global, per-profile and per-user counts. The returned
// values are owned by the counter; do not call Add afterwards.
func (c *RecordCounter) Result() (*GlobalCounts, map[string]*RecordCounts, map[string]*UserCount) {
	global := &GlobalCounts{
		RecordCounts:      *c.all,
		UsersWithNumApps:  Distribution{},
		UsersWithNumGears: Distribution{},
	}
	for _, uc := range c.byUser {
		global.UsersWithNumApps[uc.TotalApps]++
		global.UsersWithNumGears[uc.TotalGears]++
	}
	return global, c.byProfile, c.byUser
}
