package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marmos91/dittostore/pkg/catalog"
)

// printObjectLine prints "<id> v<version> <size> <key>". The id comes first
// so scripts can pick it with cut or awk.
func printObjectLine(w io.Writer, obj *catalog.StoredObject) {
	fmt.Fprintf(w, "%s\tv%d\t%s\t%s\n", obj.ID, obj.Version, humanize.Bytes(uint64(obj.Size)), obj.Key)
}

func printObjects(w io.Writer, objs []*catalog.StoredObject) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tLATEST\tSIZE\tTYPE\tCREATED\tNAME")
	for _, obj := range objs {
		latest := ""
		if obj.IsLatest {
			latest = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			obj.ID, obj.Version, latest, humanize.Bytes(uint64(obj.Size)),
			obj.MimeType, humanize.Time(obj.CreatedAt), obj.Filename)
	}
	return tw.Flush()
}

func printGrants(w io.Writer, grants []*catalog.ShareGrant) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tWITH\tCODE\tDOWNLOADS\tEXPIRES\tSTATE")
	now := time.Now()
	for _, g := range grants {
		expires := "never"
		if g.ExpiresAt != nil {
			expires = humanize.Time(*g.ExpiresAt)
		}
		code := "no"
		if len(g.CodeHash) > 0 {
			code = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			g.ID, g.Level, g.SharedWith, code, g.Downloads, expires, grantState(g, now))
	}
	return tw.Flush()
}

func grantState(g *catalog.ShareGrant, now time.Time) string {
	switch {
	case g.RevokedAt != nil:
		return "revoked"
	case g.ExpiresAt != nil && !now.Before(*g.ExpiresAt):
		return "expired"
	default:
		return "active"
	}
}
