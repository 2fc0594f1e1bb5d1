// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their processing in
sqlbind. As much as possible, reflection over user types is limited to this
package. It lists the properties of struct types, follows property paths
through argument values and plans the construction of result types.
*/
package typeinfo
