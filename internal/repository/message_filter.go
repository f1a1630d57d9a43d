package repository

import (
	"fmt"
	"strings"

	"webmail/internal/mailbox"
)

// sqlArgs collects positional parameters.
type sqlArgs struct {
	values []any
}

func (a *sqlArgs) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a literal search term into an ILIKE substring pattern.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// compileFilter renders a mailbox filter as a WHERE clause. The same clause
// backs both the page query and the count query.
func compileFilter(f mailbox.Filter, args *sqlArgs) string {
	var conds []string

	switch f.Membership {
	case mailbox.MemberTo:
		conds = append(conds, args.add(f.UserID)+" = ANY(to_ids)")
	case mailbox.MemberFrom:
		conds = append(conds, "from_user_id = "+args.add(f.UserID))
	case mailbox.MemberAny:
		p := args.add(f.UserID)
		conds = append(conds, fmt.Sprintf(
			"(from_user_id = %[1]s OR %[1]s = ANY(to_ids) OR %[1]s = ANY(cc_ids) OR %[1]s = ANY(bcc_ids))", p))
	default:
		return "FALSE"
	}

	conds = append(conds, "is_deleted = "+args.add(f.Deleted))
	if f.Draft != nil {
		conds = append(conds, "is_draft = "+args.add(*f.Draft))
	}
	if f.Important != nil {
		conds = append(conds, "is_important = "+args.add(*f.Important))
	}
	if f.Read != nil {
		conds = append(conds, "is_read = "+args.add(*f.Read))
	}
	if f.Search != "" {
		p := args.add(likePattern(f.Search))
		conds = append(conds, fmt.Sprintf("(subject ILIKE %[1]s OR body ILIKE %[1]s)", p))
	}

	return strings.Join(conds, " AND ")
}

func orderBy(s mailbox.Sort) string {
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	// created_at is the only sortable column; id breaks ties for stable pages
	return fmt.Sprintf("ORDER BY created_at %[1]s, id %[1]s", dir)
}
