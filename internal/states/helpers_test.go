package states

import "github.com/librescoot/librefsm"

func stateID(s string) librefsm.StateID { return librefsm.StateID(s) }
