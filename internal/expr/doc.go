/*
Package expr maps the arguments of a compiled query to its positional
parameters and maps fetched rows to Go values. It does not interact with the
database.

The expr package is split up into three stages: the Type Binding stage, the
Input Binding stage and the Materialize stage.

# Type Binding stage

The Type Binding stage binds the placeholders of a compiled query to the
declared arguments of an operation. The leading segment of every placeholder
name must be the name of one argument. When the declared type of that
argument is a struct, the rest of the path is checked against its
properties so that a misspelt placeholder fails when the operation is
registered rather than when it is called.

# Input Binding stage

The Input Binding stage takes the argument values of one call, follows the
path of each placeholder through them and encodes the value found with the
codec of its type. A nil met on the way binds NULL.

# Materialize stage

The Materialize stage turns one fetched row into a value of the requested
type, either through the codec of the type when it has one or by
constructing the type and setting its properties from the columns of the
row.
*/
package expr
