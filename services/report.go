package services

import (
	"fmt"
	"strconv"
	"strings"

	"deal_watcher/models"
)

const (
	NoNewDeals = "Новых сделок не найдено"
	NoData     = "Нет данных"

	dateLayout = "02.01.2006"
)

// RunSummary renders the group announcement for newly persisted deals.
func RunSummary(project string, deals []models.Deal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Проект: %s\n", project)
	for _, d := range deals {
		fmt.Fprintf(&b, "Дом № %d %s № %d, \n", d.House, d.ObjectType.Label(), d.Object)
	}
	return b.String()
}

// DealsList renders a listing query result with a total footer.
func DealsList(deals []models.Deal) string {
	if len(deals) == 0 {
		return NoData
	}

	var b strings.Builder
	for _, d := range deals {
		fmt.Fprintf(&b, "Дом № %d - %s №%d\n", d.House, d.ObjectType.Label(), d.Object)
	}
	fmt.Fprintf(&b, "\nВсего записей: %d", len(deals))
	return b.String()
}

func HousesList(project string, houses []int) string {
	if len(houses) == 0 {
		return NoData
	}

	parts := make([]string, len(houses))
	for i, h := range houses {
		parts[i] = strconv.Itoa(h)
	}
	return fmt.Sprintf("Проект: %s\nДома: %s", project, strings.Join(parts, ", "))
}

func ObjectsList(objectType models.ObjectType, house int, objects []int) string {
	if len(objects) == 0 {
		return NoData
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Дом № %d\n", house)
	for _, o := range objects {
		fmt.Fprintf(&b, "%s №%d\n", objectType.Label(), o)
	}
	return b.String()
}

// DealCard renders one deal with its handover deadline.
func DealCard(d *models.Deal) string {
	if d == nil {
		return NoData
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Проект: %s\n", d.Project)
	fmt.Fprintf(&b, "Дом № %d %s № %d\n", d.House, d.ObjectType.Label(), d.Object)
	if d.Facing != "" {
		fmt.Fprintf(&b, "Отделка: %s\n", d.Facing)
	}
	if !d.CreatedOn.IsZero() {
		fmt.Fprintf(&b, "Дата продажи: %s\n", d.CreatedOn.Format(dateLayout))
		fmt.Fprintf(&b, "Срок передачи: %s\n", d.TransferDeadline().Format(dateLayout))
	}
	return b.String()
}
