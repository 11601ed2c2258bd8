/*
Package schema loads declarative state type manifests.

A manifest declares named types, their properties and how they extend each
other. Build turns a manifest into linked *state.Type values.

# Manifest

	types:
	  base:
	    props:
	      id: { type: string, required: true, set_once: true }

	  person:
	    extends: base
	    extra_properties: reject
	    props:
	      name:  string
	      born:  { type: date }
	      role:  { type: string, values: [admin, user], default: user }
	      tags:  { type: array, required: true }
	      email:
	        type: string
	        constraints:
	          - { type: pattern, value: "^[^@]+@[^@]+$", message: "must be an email" }
	    session:
	      selected: any
	    children:
	      address: address

	  address:
	    props:
	      city: string

Children are nested state objects built with every instance. Collections
hold any number of instances of their item type, keyed by their id
attribute.

A property is either a bare type name or a mapping with the keys type,
required, allow_null, default, set_once, values and constraints.

# Constraints

Constraints compile into the property's test hook and run after
coercion:

  - min, max:               numeric bounds
  - min_length, max_length: string length bounds
  - pattern:                regular expression the string must match
  - not_empty:              string must contain a non-space character
  - one_of:                 value must print like one of the listed values

Constraints that do not apply to a value's Go type are skipped; type
checking belongs to the property's declared type.
*/
package schema
