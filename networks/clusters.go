package networks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/models"
)

// Finder groups entities plausibly controlled by one actor. Two signals feed
// a single disjoint-set keyed by entity id: shared person-name tokens and
// near-duplicate business names. Resolving the disjoint-set yields fully
// transitive components.
type Finder struct {
	db      *gorm.DB
	logger  *logrus.Logger
	nameSim float64
}

func NewFinder(db *gorm.DB, logger *logrus.Logger) *Finder {
	return &Finder{db: db, logger: logger, nameSim: config.ClusterNameSimilarity}
}

// Member is a compact projection of a cluster member.
type Member struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Address   string `json:"address"`
	LicenseID string `json:"license_id"`
}

// Cluster is one group of connected entities, largest first in Finder output.
type Cluster struct {
	EntityIDs      []int    `json:"entity_ids"`
	EntityCount    int      `json:"entity_count"`
	SharedPatterns []string `json:"shared_patterns"`
	Entities       []Member `json:"entities"`
}

// FindClusters builds clusters for a scope, optionally filtered by entity
// type. Singleton clusters are discarded; output is ordered by descending
// member count.
func (f *Finder) FindClusters(ctx context.Context, scopeKey string, entityType models.EntityType) ([]Cluster, error) {
	q := f.db.WithContext(ctx).Preload("Aliases").Where("scope_key = ?", scopeKey)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	var ents []models.Entity
	if err := q.Order("id ASC").Find(&ents).Error; err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	sets := newDisjointSet()
	for _, e := range ents {
		sets.add(e.ID)
	}

	// Signal 1: entities sharing any normalized person-name token.
	tokenOwners := map[string][]int{}
	for _, e := range ents {
		for tok := range personTokenSet(&e) {
			tokenOwners[tok] = append(tokenOwners[tok], e.ID)
		}
	}
	for _, owners := range tokenOwners {
		for i := 1; i < len(owners); i++ {
			sets.union(owners[0], owners[i])
		}
	}

	// Signal 2: near-duplicate business names, strictly above the threshold.
	for i := range ents {
		ni := ents[i].NormalizedName
		if ni == "" {
			continue
		}
		for j := i + 1; j < len(ents); j++ {
			nj := ents[j].NormalizedName
			if nj == "" {
				continue
			}
			if core.Similarity(ni, nj) > f.nameSim {
				sets.union(ents[i].ID, ents[j].ID)
			}
		}
	}

	byID := make(map[int]*models.Entity, len(ents))
	for i := range ents {
		byID[ents[i].ID] = &ents[i]
	}

	components := map[int][]int{}
	for _, e := range ents {
		root := sets.find(e.ID)
		components[root] = append(components[root], e.ID)
	}

	var clusters []Cluster
	for _, ids := range components {
		if len(ids) < 2 {
			continue
		}
		sort.Ints(ids)
		members := make([]Member, 0, len(ids))
		for _, id := range ids {
			e := byID[id]
			members = append(members, Member{
				ID:        e.ID,
				Name:      e.Name,
				Type:      string(e.EntityType),
				Address:   e.Address,
				LicenseID: e.LicenseID,
			})
		}
		clusters = append(clusters, Cluster{
			EntityIDs:      ids,
			EntityCount:    len(ids),
			SharedPatterns: sharedPatterns(ids, byID),
			Entities:       members,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].EntityCount != clusters[j].EntityCount {
			return clusters[i].EntityCount > clusters[j].EntityCount
		}
		return clusters[i].EntityIDs[0] < clusters[j].EntityIDs[0]
	})
	return clusters, nil
}

// ExtractPersonTokens heuristically pulls candidate person-name tokens from an
// entity name: comma-separated "Last, First[, Middle]" segments, or 2-4
// space-separated words when the name looks like a bare person name.
func ExtractPersonTokens(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	if strings.Contains(name, ",") {
		var out []string
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if len(part) > 2 {
				out = append(out, part)
			}
		}
		return out
	}

	runes := []rune(name)
	upperish := name == strings.ToUpper(name) ||
		(isUpperRune(runes[0]) && !strings.ContainsAny(name, "@/&"))
	if upperish {
		words := strings.Fields(name)
		if len(words) >= 2 && len(words) <= 4 {
			return words
		}
	}
	return nil
}

func personTokenSet(e *models.Entity) map[string]struct{} {
	tokens := map[string]struct{}{}
	collect := func(raw string) {
		for _, part := range ExtractPersonTokens(raw) {
			if norm := core.NormalizeName(part); norm != "" {
				tokens[norm] = struct{}{}
			}
		}
	}
	collect(e.Name)
	for _, a := range e.Aliases {
		collect(a.Alias)
	}
	return tokens
}

// sharedPatterns returns up to 3 normalized-name words (longer than 2 chars)
// common to every member, in the order they appear in the first member's name.
func sharedPatterns(ids []int, byID map[int]*models.Entity) []string {
	if len(ids) == 0 {
		return nil
	}
	first := strings.Fields(byID[ids[0]].NormalizedName)
	var out []string
	for _, w := range first {
		if len(w) <= 2 {
			continue
		}
		inAll := true
		for _, id := range ids[1:] {
			if !containsWord(byID[id].NormalizedName, w) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, w)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}

func containsWord(normalized, word string) bool {
	for _, w := range strings.Fields(normalized) {
		if w == word {
			return true
		}
	}
	return false
}

func isUpperRune(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// disjointSet is a union-find over entity ids with path compression.
type disjointSet struct {
	parent map[int]int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{parent: map[int]int{}}
}

func (d *disjointSet) add(x int) {
	if _, ok := d.parent[x]; !ok {
		d.parent[x] = x
	}
}

func (d *disjointSet) find(x int) int {
	d.add(x)
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

func (d *disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra != rb {
		// Attach the larger root id under the smaller so component roots
		// are stable across runs.
		if ra < rb {
			d.parent[rb] = ra
		} else {
			d.parent[ra] = rb
		}
	}
}
