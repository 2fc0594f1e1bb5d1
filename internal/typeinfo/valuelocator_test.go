// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"errors"
	"reflect"

	. "gopkg.in/check.v1"
)

type Address struct {
	City string `db:"city"`
}

type Customer struct {
	Name    string
	Address *Address
	Extra   any
}

func (c *Customer) Upper() string {
	return "X" + c.Name
}

func (s *typeInfoSuite) TestSplitPath(c *C) {
	c.Check(SplitPath("user.name"), DeepEquals, []string{"user", "name"})
	c.Check(SplitPath("id"), DeepEquals, []string{"id"})
	c.Check(SplitPath("user.\tname\n"), DeepEquals, []string{"user", "name"})
}

func (s *typeInfoSuite) TestResolvePath(c *C) {
	ct := reflect.TypeOf(Customer{})

	last, complete, err := ResolvePath(ct, []string{"address", "city"})
	c.Assert(err, IsNil)
	c.Check(complete, Equals, true)
	c.Check(last, Equals, reflect.TypeOf(""))

	last, complete, err = ResolvePath(reflect.PointerTo(ct), []string{"upper"})
	c.Assert(err, IsNil)
	c.Check(complete, Equals, true)
	c.Check(last, Equals, reflect.TypeOf(""))

	// Interface typed properties can only be followed at run time.
	last, complete, err = ResolvePath(ct, []string{"extra", "anything"})
	c.Assert(err, IsNil)
	c.Check(complete, Equals, false)
	c.Check(last, Equals, reflect.TypeOf((*any)(nil)).Elem())

	_, _, err = ResolvePath(ct, []string{"address", "zip"})
	c.Check(err, ErrorMatches, `typeinfo.Address has no property "zip": unknown property`)
	c.Check(errors.Is(err, ErrUnknownProperty), Equals, true)

	_, _, err = ResolvePath(ct, []string{"name", "length"})
	c.Check(err, ErrorMatches, `string has no property "length": unknown property`)
}

func (s *typeInfoSuite) TestLocate(c *C) {
	ct := reflect.TypeOf(&Customer{})
	cust := &Customer{Name: "kyle", Address: &Address{City: "Leeds"}, Extra: Address{City: "York"}}

	v, t, err := Locate(reflect.ValueOf(cust), ct, []string{"address", "city"})
	c.Assert(err, IsNil)
	c.Check(v.Interface(), Equals, "Leeds")
	c.Check(t, Equals, reflect.TypeOf(""))

	v, _, err = Locate(reflect.ValueOf(cust), ct, []string{"upper"})
	c.Assert(err, IsNil)
	c.Check(v.Interface(), Equals, "Xkyle")

	// The runtime type of an interface value is followed.
	v, _, err = Locate(reflect.ValueOf(cust), ct, []string{"extra", "city"})
	c.Assert(err, IsNil)
	c.Check(v.Interface(), Equals, "York")

	// No path gives back the value itself.
	v, t, err = Locate(reflect.ValueOf(cust), ct, nil)
	c.Assert(err, IsNil)
	c.Check(v.Interface(), Equals, cust)
	c.Check(t, Equals, ct)

	_, _, err = Locate(reflect.ValueOf(cust), ct, []string{"extra", "zip"})
	c.Check(err, ErrorMatches, `typeinfo.Address has no property "zip": unknown property`)
}

func (s *typeInfoSuite) TestLocateThroughNil(c *C) {
	ct := reflect.TypeOf(&Customer{})

	v, t, err := Locate(reflect.ValueOf(&Customer{}), ct, []string{"address", "city"})
	c.Assert(err, IsNil)
	c.Check(v.IsValid(), Equals, false)
	c.Check(t, Equals, reflect.TypeOf(""))

	v, t, err = Locate(reflect.ValueOf((*Customer)(nil)), ct, []string{"address", "city"})
	c.Assert(err, IsNil)
	c.Check(v.IsValid(), Equals, false)
	c.Check(t, Equals, reflect.TypeOf(""))

	v, t, err = Locate(reflect.ValueOf(&Customer{}), ct, []string{"extra", "city"})
	c.Assert(err, IsNil)
	c.Check(v.IsValid(), Equals, false)
	c.Check(t, Equals, reflect.TypeOf((*any)(nil)).Elem())
}
