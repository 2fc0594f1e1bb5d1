package cli

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlbind"
	"github.com/canonical/sqlbind/drivers/sqlite"
)

type Person struct {
	Name     string `db:"name"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

type Place struct {
	Name       string `db:"town_name"`
	Population int    `db:"population"`
}

type demoDAO struct {
	AddPerson  func(ctx context.Context, p Person) error                     `sql:"insert into people (name, height_cm, home_town) values (:p.name, :p.height_cm, :p.home_town)" args:"p"`
	AddPlace   func(ctx context.Context, p Place) error                      `sql:"insert into location (town_name, population) values (:p.town_name, :p.population)" args:"p" opts:"keepstmt"`
	TallerThan func(ctx context.Context, p Person) (*sqlbind.Iter[Person], error) `sql:"select name, height_cm, home_town from people where height_cm > :p.height_cm order by height_cm" args:"p"`
	TallCities func(ctx context.Context, height int) (map[string]struct{}, error) `sql:"select l.town_name from people p join location l on p.home_town = l.town_name where p.height_cm > :height" args:"height"`
}

const demoSchema = `
CREATE TABLE people (
	name text,
	height_cm integer,
	home_town text
);
CREATE TABLE location (
	town_name text,
	population integer
);
`

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a short demonstration on an in-memory SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd)
		},
	}
}

func runDemo(cmd *cobra.Command) error {
	ctx := cmd.Context()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		return err
	}
	defer db.Close()
	// Every connection to ":memory:" is a new database.
	db.PlainDB().SetMaxOpenConns(1)

	h, err := db.Handle(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.ExecScript(ctx, demoSchema); err != nil {
		return err
	}

	var dao demoDAO
	if err := h.Attach(&dao); err != nil {
		return err
	}
	people := []Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	places := []Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}
	for _, p := range people {
		if err := dao.AddPerson(ctx, p); err != nil {
			return err
		}
	}
	for _, p := range places {
		if err := dao.AddPlace(ctx, p); err != nil {
			return err
		}
	}
	if err := h.Commit(ctx); err != nil {
		return err
	}

	jim := people[0]
	it, err := dao.TallerThan(ctx, jim)
	if err != nil {
		return err
	}
	for p, err := range it.All() {
		if err != nil {
			return err
		}
		cmd.Printf("%s is taller than %s.\n", p.Name, jim.Name)
	}

	cities, err := dao.TallCities(ctx, jim.Height)
	if err != nil {
		return err
	}
	cmd.Printf("Cities with people taller than %s: %s\n", jim.Name, strings.Join(slices.Sorted(maps.Keys(cities)), ", "))
	return h.Rollback(ctx)
}
