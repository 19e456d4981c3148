package enum

type EntityType string

const (
	REPORT EntityType = "REPORT"
	ALERT  EntityType = "ALERT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}

func GetEntityType(s string) EntityType {
	return EntityType(s)
}
